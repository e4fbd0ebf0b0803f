// Package websink implements messenger.InteractiveSink as a local
// net/http + html/template dashboard. The pack contains no GUI widget
// toolkit (see the project's DESIGN.md), so this is the idiomatic Go
// substitute for the original's Tk/Eel "GUI variant": one page showing
// current action items (manual prompts with Done/Retry/Skip buttons),
// a live problems list, and per-task status rows, refreshed by polling a
// JSON snapshot endpoint. All display state lives in Sink and is guarded by
// its mutex: worker goroutines update it through Sink's exported methods
// and the http.Server's request handlers read it and deliver prompt replies
// under the same lock; workers never touch the HTTP layer directly.
package websink

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mediacrew/checkflow/internal/cancel"
	"github.com/mediacrew/checkflow/internal/messenger"
)

type statusRow struct {
	TaskName string
	Status   messenger.Status
	Message  string
	Index    int
}

type problemRow struct {
	TaskName string
	Level    messenger.ProblemLevel
	Message  string
}

type progressRow struct {
	TaskName    string
	DisplayName string
	Value       float64
	Max         float64
	Units       string
}

// pendingPrompt is a manual Wait/Input style request awaiting a browser
// response.
type pendingPrompt struct {
	Kind     string // "wait", "input", "input_multiple", "input_bool"
	TaskName string
	Prompt   string
	Title    string
	Allowed  []string
	Fields   map[string]messenger.Parameter
	reply    chan promptReply
}

type promptReply struct {
	value map[string]string
	err   error
}

// Sink is the web dashboard InteractiveSink.
type Sink struct {
	listener net.Listener
	server   *http.Server
	tmpl     *template.Template
	started  chan struct{}

	mu         sync.Mutex
	statuses   map[string]*statusRow
	problems   []problemRow
	bars       map[string]*progressRow
	cancelable map[string]func()
	prompts    map[string]*pendingPrompt
	indexTable map[string]int
	closed     bool
}

// New binds addr (e.g. "127.0.0.1:0" to pick a free port) and returns a
// Sink ready to serve once RunMainLoop is called.
func New(addr string) (*Sink, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websink: listen: %w", err)
	}
	s := &Sink{
		listener:   ln,
		started:    make(chan struct{}),
		statuses:   make(map[string]*statusRow),
		bars:       make(map[string]*progressRow),
		cancelable: make(map[string]func()),
		prompts:    make(map[string]*pendingPrompt),
	}
	s.tmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))
	close(s.started)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/respond", s.handleRespond)
	s.server = &http.Server{Handler: mux}
	return s, nil
}

// Addr returns the bound "host:port" once New has succeeded.
func (s *Sink) Addr() string {
	return s.listener.Addr().String()
}

// SetTaskIndexTable implements messenger.InteractiveSink.
func (s *Sink) SetTaskIndexTable(indexByTask map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexTable = indexByTask
}

// LogStatus implements messenger.InteractiveSink.
func (s *Sink) LogStatus(taskName string, status messenger.Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[taskName] = &statusRow{
		TaskName: taskName,
		Status:   status,
		Message:  message,
		Index:    s.indexTable[taskName],
	}
}

// LogProblem implements messenger.InteractiveSink.
func (s *Sink) LogProblem(taskName string, level messenger.ProblemLevel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = append(s.problems, problemRow{TaskName: taskName, Level: level, Message: message})
}

// Input implements messenger.InteractiveSink.
func (s *Sink) Input(displayName string, password bool, parse func(string) (string, error), prompt, title string) (string, error) {
	reply, err := s.awaitPrompt(&pendingPrompt{
		Kind:   "input",
		Prompt: prompt,
		Title:  title,
		Fields: map[string]messenger.Parameter{
			"value": {DisplayName: displayName, Password: password, Parse: parse},
		},
	})
	if err != nil {
		return "", err
	}
	return reply.value["value"], reply.err
}

// InputMultiple implements messenger.InteractiveSink.
func (s *Sink) InputMultiple(params map[string]messenger.Parameter, prompt, title string) (map[string]string, error) {
	reply, err := s.awaitPrompt(&pendingPrompt{
		Kind:   "input_multiple",
		Prompt: prompt,
		Title:  title,
		Fields: params,
	})
	if err != nil {
		return nil, err
	}
	return reply.value, reply.err
}

// InputBool implements messenger.InteractiveSink.
func (s *Sink) InputBool(prompt, title string) (bool, error) {
	reply, err := s.awaitPrompt(&pendingPrompt{
		Kind:    "input_bool",
		Prompt:  prompt,
		Title:   title,
		Allowed: []string{"yes", "no"},
	})
	if err != nil {
		return false, err
	}
	return reply.value["value"] == "yes", reply.err
}

// Wait implements messenger.InteractiveSink.
func (s *Sink) Wait(taskName, prompt string, allowed []messenger.Response) (messenger.Response, error) {
	allowedStrs := make([]string, len(allowed))
	for i, r := range allowed {
		allowedStrs[i] = string(r)
	}
	reply, err := s.awaitPrompt(&pendingPrompt{
		Kind:     "wait",
		TaskName: taskName,
		Prompt:   prompt,
		Allowed:  allowedStrs,
	})
	if err != nil {
		return "", err
	}
	return messenger.Response(reply.value["value"]), reply.err
}

func (s *Sink) awaitPrompt(p *pendingPrompt) (promptReply, error) {
	p.reply = make(chan promptReply, 1)
	id := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return promptReply{}, cancel.ErrCancelled
	}
	s.prompts[id] = p
	s.mu.Unlock()

	reply := <-p.reply
	return reply, nil
}

// ShowCancellable implements messenger.InteractiveSink.
func (s *Sink) ShowCancellable(taskName string, onCancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelable[taskName] = onCancel
}

// HideCancellable implements messenger.InteractiveSink.
func (s *Sink) HideCancellable(taskName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelable, taskName)
}

// CreateProgressBar implements messenger.InteractiveSink.
func (s *Sink) CreateProgressBar(key, taskName, displayName string, maxValue float64, units string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[key] = &progressRow{TaskName: taskName, DisplayName: displayName, Max: maxValue, Units: units}
}

// UpdateProgressBar implements messenger.InteractiveSink.
func (s *Sink) UpdateProgressBar(key string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bar, ok := s.bars[key]; ok {
		bar.Value = value
	}
}

// DeleteProgressBar implements messenger.InteractiveSink.
func (s *Sink) DeleteProgressBar(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bars, key)
}

// RunMainLoop implements messenger.InteractiveSink: serves HTTP on the
// calling goroutine until Close shuts the server down.
func (s *Sink) RunMainLoop() {
	_ = s.server.Serve(s.listener)
}

// WaitForStart implements messenger.InteractiveSink. The listener is bound
// synchronously in New, so this never actually blocks.
func (s *Sink) WaitForStart() {
	<-s.started
}

// Close implements messenger.InteractiveSink: stops the HTTP server and
// releases every goroutine blocked in awaitPrompt with cancel.ErrCancelled.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	prompts := s.prompts
	s.prompts = make(map[string]*pendingPrompt)
	s.mu.Unlock()

	for _, p := range prompts {
		p.reply <- promptReply{err: cancel.ErrCancelled}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	_ = s.server.Shutdown(ctx)
}

func (s *Sink) handleIndex(w http.ResponseWriter, r *http.Request) {
	_ = s.tmpl.Execute(w, nil)
}

type stateSnapshot struct {
	Statuses []*statusRow             `json:"statuses"`
	Problems []problemRow             `json:"problems"`
	Bars     []*progressRow           `json:"progress_bars"`
	Prompts  map[string]*promptSummary `json:"prompts"`
}

type promptSummary struct {
	Kind     string                       `json:"kind"`
	TaskName string                       `json:"task_name,omitempty"`
	Prompt   string                       `json:"prompt"`
	Title    string                       `json:"title,omitempty"`
	Allowed  []string                     `json:"allowed,omitempty"`
	Fields   map[string]messenger.Parameter `json:"-"`
}

func (s *Sink) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snapshot := stateSnapshot{Problems: append([]problemRow(nil), s.problems...)}
	for _, row := range s.statuses {
		snapshot.Statuses = append(snapshot.Statuses, row)
	}
	for _, bar := range s.bars {
		snapshot.Bars = append(snapshot.Bars, bar)
	}
	snapshot.Prompts = make(map[string]*promptSummary, len(s.prompts))
	for id, p := range s.prompts {
		snapshot.Prompts[id] = &promptSummary{Kind: p.Kind, TaskName: p.TaskName, Prompt: p.Prompt, Title: p.Title, Allowed: p.Allowed}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

type respondRequest struct {
	ID     string            `json:"id"`
	Values map[string]string `json:"values"`
}

func (s *Sink) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	p, ok := s.prompts[req.ID]
	if ok {
		delete(s.prompts, req.ID)
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "unknown or already-answered prompt", http.StatusNotFound)
		return
	}

	values, err := resolveFields(p, req.Values)
	p.reply <- promptReply{value: values, err: err}
	w.WriteHeader(http.StatusNoContent)
}

// resolveFields applies each field's Parse function (if any), returning the
// first parse error encountered.
func resolveFields(p *pendingPrompt, raw map[string]string) (map[string]string, error) {
	if len(p.Fields) == 0 {
		return raw, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		field, ok := p.Fields[k]
		if !ok {
			out[k] = v
			continue
		}
		if v == "" && field.Default != "" {
			v = field.Default
		}
		if field.Parse != nil {
			parsed, err := field.Parse(v)
			if err != nil {
				return nil, err
			}
			v = parsed
		}
		out[k] = v
	}
	return out, nil
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>checkflow</title></head>
<body>
<h1>checkflow</h1>
<div id="prompts"></div>
<h2>Status</h2>
<div id="statuses"></div>
<h2>Problems</h2>
<div id="problems"></div>
<h2>Progress</h2>
<div id="progress"></div>
<script>
async function refresh() {
  const res = await fetch('/api/state');
  const state = await res.json();
  document.getElementById('statuses').innerText = JSON.stringify(state.statuses, null, 2);
  document.getElementById('problems').innerText = JSON.stringify(state.problems, null, 2);
  document.getElementById('progress').innerText = JSON.stringify(state.progress_bars, null, 2);
  document.getElementById('prompts').innerText = JSON.stringify(state.prompts, null, 2);
}
setInterval(refresh, 1000);
refresh();
</script>
</body>
</html>`
