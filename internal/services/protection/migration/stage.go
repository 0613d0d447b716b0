package migration

import "context"

// Row is one walked row and the checkpoint offset that follows it.
type Row[R any] struct {
	Value  R
	Offset int64
}

// TableWalker returns up to limit rows positioned after offset. Fewer than
// limit rows means the table is exhausted.
type TableWalker[R any] func(ctx context.Context, offset int64, limit int) ([]Row[R], error)

// RowHandler converts walked rows. Handle must be idempotent: a batch that
// was interrupted before its checkpoint is walked again.
type RowHandler[R any] interface {
	OnStart(ctx context.Context) error
	Handle(ctx context.Context, row R) error
	OnComplete(ctx context.Context) error
}

// Handler adapts functions to RowHandler. Nil hooks are skipped.
type Handler[R any] struct {
	Start    func(ctx context.Context) error
	Row      func(ctx context.Context, row R) error
	Complete func(ctx context.Context) error
}

// OnStart calls Start.
func (h Handler[R]) OnStart(ctx context.Context) error {
	if h.Start == nil {
		return nil
	}
	return h.Start(ctx)
}

// Handle calls Row.
func (h Handler[R]) Handle(ctx context.Context, row R) error {
	if h.Row == nil {
		return nil
	}
	return h.Row(ctx, row)
}

// OnComplete calls Complete.
func (h Handler[R]) OnComplete(ctx context.Context) error {
	if h.Complete == nil {
		return nil
	}
	return h.Complete(ctx)
}

// Stage is one table walker paired with its row handler.
type Stage interface {
	Name() string
	start(ctx context.Context) error
	batch(ctx context.Context, offset int64, limit int, visit func(offset int64, err error) bool) (exhausted bool, err error)
	complete(ctx context.Context) error
}

type stage[R any] struct {
	name    string
	walker  TableWalker[R]
	handler RowHandler[R]
}

// NewStage pairs a walker with a handler.
func NewStage[R any](name string, walker TableWalker[R], handler RowHandler[R]) Stage {
	return &stage[R]{name: name, walker: walker, handler: handler}
}

func (s *stage[R]) Name() string { return s.name }

func (s *stage[R]) start(ctx context.Context) error { return s.handler.OnStart(ctx) }

func (s *stage[R]) complete(ctx context.Context) error { return s.handler.OnComplete(ctx) }

// batch walks one batch, reporting each handled row to visit. It stops early
// when visit returns false.
func (s *stage[R]) batch(ctx context.Context, offset int64, limit int, visit func(int64, error) bool) (bool, error) {
	rows, err := s.walker(ctx, offset, limit)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !visit(row.Offset, s.handler.Handle(ctx, row.Value)) {
			return false, nil
		}
	}
	return len(rows) < limit, nil
}
