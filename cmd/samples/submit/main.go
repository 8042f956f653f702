// Command submit runs the smallest possible end-to-end check against a local
// cloudpipe backend: submit a job that adds two numbers, wait for its result,
// and print it.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudpipe/cloudpipe/pkg/client"
)

func main() {
	c, err := client.New(client.ConfigFromEnv("admin", "12345"))
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	jid, err := c.Submit(ctx, client.JobSpec{
		Name:    "add",
		Command: "expr 3 + 4",
	})
	if err != nil {
		log.Fatal(err)
	}

	result, err := c.Result(ctx, jid)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("added %d and %d to get %s... in the cloud!\n", 3, 4, strings.TrimSuffix(string(result), "\n"))
}
