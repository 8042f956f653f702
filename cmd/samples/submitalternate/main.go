// Command submitalternate submits a job whose command writes to stderr, waits
// for it to finish, and prints the captured stderr from the final snapshot.
package main

import (
	"context"
	"fmt"
	"log"
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
		Name:    "alternate",
		Command: `expr 3 + 4; echo "python is unavailable" >&2`,
	})
	if err != nil {
		log.Fatal(err)
	}

	job, err := c.Wait(ctx, jid)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Job's stderr:\n\t%s", job.Stderr)
}
