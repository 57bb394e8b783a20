/*
Enqueue.go has an interface and a method for instantiating a new que-go client that satisfies the Enqueuer interface.
This allows the que client to be mocked for testing.
*/

package queueing

import (
	"context"
	"encoding/json"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
)

// Enqueuer only handles inserting job entries into the appropriate table
type Enqueuer interface {
	AddJob(ctx context.Context, job models.ImportJobArgs, priority int) error
}

func NewEnqueuer(queDB *pgx.ConnPool) Enqueuer {
	return queEnqueuer{que.NewClient(queDB)}
}

// QUE implementation https://github.com/bgentry/que-go
type queEnqueuer struct {
	*que.Client
}

func (q queEnqueuer) AddJob(ctx context.Context, job models.ImportJobArgs, priority int) error {
	args, err := json.Marshal(job)
	if err != nil {
		return err
	}

	j := &que.Job{
		Type:     models.QUE_PROCESS_IMPORT_JOB,
		Args:     args,
		Priority: int16(priority),
	}

	return q.Enqueue(j)
}
