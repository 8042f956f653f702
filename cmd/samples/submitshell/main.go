// Command submitshell exercises the three result sources of a shell job:
// captured stdout, a result file, and stdin passthrough. Each job must
// produce the string "success"; the process exits 1 if any job does not.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cloudpipe/cloudpipe/pkg/client"
)

func main() {
	c, err := client.New(client.ConfigFromEnv("admin", "12345"))
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cases := []struct {
		name string
		spec client.JobSpec
	}{
		{
			name: "stdout result",
			spec: client.JobSpec{Command: `echo "success"`},
		},
		{
			name: "file result",
			spec: client.JobSpec{
				Command:    `echo "success" > /tmp/out`,
				ResultFile: "/tmp/out",
			},
		},
		{
			name: "stdin",
			spec: client.JobSpec{
				Command: "cat",
				Stdin:   []byte("success"),
			},
		},
	}

	longest := 0
	for _, tc := range cases {
		if len(tc.name) > longest {
			longest = len(tc.name)
		}
	}

	success := 0
	failure := 0

	for _, tc := range cases {
		jid, err := c.Submit(ctx, tc.spec)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%-*s: job %s ...", longest, tc.name, jid)

		result, err := c.Result(ctx, jid)
		if err != nil {
			log.Fatal(err)
		}

		trimmed := strings.Trim(string(result), "\n")
		fmt.Printf(" result [%s]\n", trimmed)

		if trimmed == "success" {
			success++
		} else {
			failure++
		}
	}

	fmt.Printf("%d pass / %d fail\n", success, failure)
	if failure > 0 {
		os.Exit(1)
	}
}
