package bridge

import "context"

// Well-known process types used by the host for processes it starts itself.
const (
	PipeType      = "pipe"
	DuplicateType = "duplicate"
)

type PipeReadOptions struct {
	// ByteLimit caps how much is returned. Zero uses the host's default.
	ByteLimit int
}

type OpenWindowOptions struct {
	// Single keeps at most one window open on the page.
	Single bool
}

// Process drives processes owned by the host. A process is named by a type and a key, or by its PID.
type Process struct {
	c *caller
}

// Start runs argv under (typ, key) and returns its PID. argv[0] is the executable.
func (p *Process) Start(ctx context.Context, typ, key string, argv []string) (int, error) {
	res, err := p.c.query(ctx, "process_start", enc(typ), enc(key), encAll(argv))
	if err != nil {
		return 0, err
	}
	return res.Int()
}

// Kill stops the process and reports whether there was one to stop.
func (p *Process) Kill(ctx context.Context, typ, key string) (bool, error) {
	return p.c.boolQuery(ctx, "process_kill", enc(typ), enc(key))
}

// Has reports whether (typ, key) is tracked, running or not.
func (p *Process) Has(ctx context.Context, typ, key string) (bool, error) {
	return p.c.boolQuery(ctx, "process_has", enc(typ), enc(key))
}

func (p *Process) HasRunning(ctx context.Context, typ, key string) (bool, error) {
	return p.c.boolQuery(ctx, "process_has_running", enc(typ), enc(key))
}

func (p *Process) HasPID(ctx context.Context, typ string, pid int) (bool, error) {
	return p.c.boolQuery(ctx, "process_has_pid", enc(typ), pid)
}

// Wait blocks until the process exits and returns its exit code. The process is no longer tracked afterwards.
func (p *Process) Wait(ctx context.Context, typ, key string) (int, error) {
	res, err := p.c.query(ctx, "process_wait", enc(typ), enc(key))
	if err != nil {
		return 0, err
	}
	return res.Int()
}

func (p *Process) WaitPID(ctx context.Context, typ string, pid int) (int, error) {
	res, err := p.c.query(ctx, "process_wait_pid", enc(typ), pid)
	if err != nil {
		return 0, err
	}
	return res.Int()
}

// Duplicate starts another instance of the host application and returns its PID.
func (p *Process) Duplicate(ctx context.Context) (int, error) {
	res, err := p.c.query(ctx, "duplicate_process")
	if err != nil {
		return 0, err
	}
	return res.Int()
}

func pipeArgs(first any, opts PipeReadOptions) []any {
	if opts.ByteLimit > 0 {
		return []any{first, opts.ByteLimit}
	}
	return []any{first}
}

func pipeData(res Result) ([]byte, bool) {
	s, ok := res.String()
	if !ok {
		return nil, false
	}
	return []byte(s), true
}

// PipeRead returns output buffered for the pipe process key since the last read.
// ok is false once the pipe is gone; an open pipe with nothing new returns empty data.
func (p *Process) PipeRead(ctx context.Context, key string, opts PipeReadOptions) (data []byte, ok bool, err error) {
	res, err := p.c.query(ctx, "pipe_read", pipeArgs(enc(key), opts)...)
	if err != nil {
		return nil, false, err
	}
	data, ok = pipeData(res)
	return data, ok, nil
}

func (p *Process) PipeReadPID(ctx context.Context, pid int, opts PipeReadOptions) (data []byte, ok bool, err error) {
	res, err := p.c.query(ctx, "pipe_read_pid", pipeArgs(pid, opts)...)
	if err != nil {
		return nil, false, err
	}
	data, ok = pipeData(res)
	return data, ok, nil
}

// OpenURI opens uri with the desktop's default handler.
func (p *Process) OpenURI(ctx context.Context, uri string) error {
	return p.c.command(ctx, "open_uri", enc(uri))
}

// OpenWindow opens page in a new host window.
func (p *Process) OpenWindow(ctx context.Context, page string, opts OpenWindowOptions) error {
	return p.c.command(ctx, "open_window", enc(page), opts.Single)
}

// Clean forgets every process that has exited and returns how many there were.
func (p *Process) Clean(ctx context.Context) (int, error) {
	res, err := p.c.query(ctx, "process_clean")
	if err != nil {
		return 0, err
	}
	return res.Int()
}
