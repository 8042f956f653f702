// Command killjob submits a long-running job, waits until it is actually
// running, kills it, and waits for the KILLED terminal state. The waits are
// explicit status transitions with bounded timeouts, not fixed sleeps, so
// the kill cannot race the job's startup.
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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jid, err := c.Submit(ctx, client.JobSpec{
		Name:    "longtime",
		Command: `echo "Getting started"; for i in $(seq 1 30); do sleep 1; echo "$i seconds"; done`,
	})
	if err != nil {
		log.Fatal(err)
	}

	if _, err := c.WaitStatus(ctx, jid, client.StatusRunning); err != nil {
		log.Fatal(err)
	}

	if err := c.Kill(ctx, jid); err != nil {
		log.Fatal(err)
	}

	job, err := c.Wait(ctx, jid)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("job = %s, status = %s\n", job.JID, job.Status)
}
