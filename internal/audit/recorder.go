// Package audit appends the immutable scan-history trail. Rows are written
// once per verification attempt and never updated or deleted here; purging is
// an administrative concern outside this service.
package audit

import (
	"context"

	"github.com/uptrace/bun"

	"ms-verify/internal/models"
)

type Recorder struct {
	Bun *bun.DB
}

func NewRecorder(bunDB *bun.DB) *Recorder {
	return &Recorder{Bun: bunDB}
}

func (r *Recorder) Record(ctx context.Context, event *models.ScanEvent) error {
	_, err := r.Bun.NewInsert().Model(event).Exec(ctx)
	return err
}
