// Package agentproc implements the supervised child coding-CLI process
// (C3) and its line-delimited JSON stream parser (C4): spawn a process in a
// working directory, feed it prompts via stdin, parse its stdout, maintain
// a bounded output buffer and running statistics, and report termination.
package agentproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autopipe/engine/pkg/model"
)

const outputBufferCap = 100

// SourceCategory re-exports model.SourceCategory for call sites that only
// need to name a spawn source without importing model directly.
type SourceCategory = model.SourceCategory

// Statistics is the mutable counters side of spec §3's AgentProcess
// statistics record.
type Statistics struct {
	TotalPrompts    int64
	TotalToolCalls  int64
	TotalOutputBytes int64
	TotalTokensUsed int64
	TotalCostUSD    float64
	PerModelUsage   map[string]*model.ModelUsage
}

// SpawnConfig is the input contract for Spawn, per spec §4.1.
type SpawnConfig struct {
	WorkingDir    string
	InitialPrompt string
	Source        SourceCategory
	PipelineID    string
	BinaryPath    string // resolved via DiscoverBinary by the caller
	OnEvent       func(model.AgentOutputEvent)
}

// AgentProcess is the live, lock-guarded state of one spawned child process,
// per spec §3's AgentProcess data model entry.
type AgentProcess struct {
	ID         string
	PipelineID string
	WorkingDir string
	Source     SourceCategory

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdinCh chan string

	mu              sync.Mutex
	lastActivity    time.Time
	processing      bool
	pendingInput    bool
	stats           Statistics
	outputBuffer    []model.AgentOutputEvent
	generatedSkills []string
	sessionID       string
	status          model.RunStatus
	onEvent         func(model.AgentOutputEvent)

	stopOnce sync.Once
	done     chan struct{}
	log      *slog.Logger
}

// Spawn launches a coding-CLI child process per the spawn contract in
// spec §4.1: on binary-discovery failure the caller should already have
// returned NotFoundError; Spawn itself only reports SpawnError for a failure
// to start the resolved binary.
func Spawn(ctx context.Context, cfg SpawnConfig) (*AgentProcess, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("agentproc: spawn called without a resolved binary path")
	}
	id := uuid.NewString()
	log := slog.With("agent_id", id, "pipeline_id", cfg.PipelineID, "source", cfg.Source)

	cmd := exec.CommandContext(ctx, cfg.BinaryPath, "--dangerously-skip-permissions", "--stream-json", cfg.InitialPrompt)
	cmd.Dir = cfg.WorkingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agentproc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agentproc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("agentproc: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agentproc: start: %w", err)
	}

	ap := &AgentProcess{
		ID:         id,
		PipelineID: cfg.PipelineID,
		WorkingDir: cfg.WorkingDir,
		Source:     cfg.Source,
		cmd:        cmd,
		stdin:      stdin,
		stdinCh:    make(chan string, 8),
		lastActivity: time.Now(),
		status:     model.RunRunning,
		onEvent:    cfg.OnEvent,
		done:       make(chan struct{}),
		log:        log,
		stats:      Statistics{PerModelUsage: map[string]*model.ModelUsage{}},
	}

	go ap.stdinWriter()
	go ap.captureOutput(stdout, false)
	go ap.captureOutput(stderr, true)
	go ap.supervise()

	log.Info("agent spawned", "working_dir", cfg.WorkingDir)
	return ap, nil
}

// Send queues a line to be written to the child's stdin. It is safe to call
// from any goroutine; the write itself happens on the dedicated stdin
// writer task (spec §5: stdin send is a cooperative suspension point).
func (ap *AgentProcess) Send(line string) {
	select {
	case ap.stdinCh <- line:
	case <-ap.done:
	}
}

func (ap *AgentProcess) stdinWriter() {
	for {
		select {
		case line, ok := <-ap.stdinCh:
			if !ok {
				return
			}
			ap.mu.Lock()
			ap.pendingInput = false
			ap.mu.Unlock()
			if _, err := io.WriteString(ap.stdin, line+"\n"); err != nil {
				ap.log.Warn("stdin write failed", "error", err)
				return
			}
		case <-ap.done:
			return
		}
	}
}

func (ap *AgentProcess) supervise() {
	err := ap.cmd.Wait()
	close(ap.done)

	ap.mu.Lock()
	defer ap.mu.Unlock()
	now := time.Now()
	ap.lastActivity = now
	ap.processing = false

	if ap.status == model.RunStopped {
		// already finalized by Stop()
		return
	}
	if err == nil {
		ap.status = model.RunCompleted
	} else {
		ap.status = model.RunCrashed
	}
}

// Status returns the current run status.
func (ap *AgentProcess) Status() model.RunStatus {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.status
}

// Stats returns a snapshot copy of the current statistics.
func (ap *AgentProcess) Stats() Statistics {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	snapshot := ap.stats
	snapshot.PerModelUsage = make(map[string]*model.ModelUsage, len(ap.stats.PerModelUsage))
	for k, v := range ap.stats.PerModelUsage {
		cp := *v
		snapshot.PerModelUsage[k] = &cp
	}
	return snapshot
}

// OutputBuffer returns a snapshot copy of the last (at most) 100 events.
func (ap *AgentProcess) OutputBuffer() []model.AgentOutputEvent {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	out := make([]model.AgentOutputEvent, len(ap.outputBuffer))
	copy(out, ap.outputBuffer)
	return out
}

// SessionID returns the session id observed from this agent's output, if any.
func (ap *AgentProcess) SessionID() string {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.sessionID
}

// GeneratedSkills returns the names of skills this agent created during its
// run, per spec §3's AgentProcess entry.
func (ap *AgentProcess) GeneratedSkills() []string {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	out := make([]string, len(ap.generatedSkills))
	copy(out, ap.generatedSkills)
	return out
}

// RecordGeneratedSkill appends a skill name, called by the create_skill tool
// handler (C8) when this agent authors a new skill file.
func (ap *AgentProcess) RecordGeneratedSkill(name string) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.generatedSkills = append(ap.generatedSkills, name)
}

// Stop requests termination per spec §4.1's stop contract: SIGTERM-
// equivalent, then a grace period, then a force-kill. Stopping is
// idempotent — a second call observes the process already exited and
// returns immediately.
func (ap *AgentProcess) Stop(graceTimeout time.Duration) {
	ap.stopOnce.Do(func() {
		ap.mu.Lock()
		alreadyDone := ap.status != model.RunRunning
		ap.mu.Unlock()
		if alreadyDone {
			return
		}
		if ap.cmd.Process != nil {
			_ = ap.cmd.Process.Signal(stopSignal())
		}
		select {
		case <-ap.done:
		case <-time.After(graceTimeout):
			if ap.cmd.Process != nil {
				_ = ap.cmd.Process.Kill()
			}
			<-ap.done
		}
		ap.mu.Lock()
		ap.status = model.RunStopped
		ap.mu.Unlock()
	})
}

// captureOutput reads newline-delimited output from r (stdout when
// isStderr is false, stderr otherwise) and routes each line through the
// stream parser.
func (ap *AgentProcess) captureOutput(r io.Reader, isStderr bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ap.mu.Lock()
		ap.lastActivity = time.Now()
		ap.mu.Unlock()
		if isStderr {
			ap.handleLine(line, model.OutputError)
			continue
		}
		ap.handleLine(line, "")
	}
}

// handleLine is the C4 stream parser entry point: classify, extract
// metadata, update statistics, buffer, and re-emit. forceType overrides
// classification (used for stderr lines, always classified as errors).
func (ap *AgentProcess) handleLine(line string, forceType model.OutputType) {
	event := ap.classify(line, forceType)
	ap.applyStatistics(event)
	ap.bufferEvent(event)
	if ap.onEvent != nil {
		ap.onEvent(event)
	}
}

// classify implements spec §4.1's message classification rules.
func (ap *AgentProcess) classify(line string, forceType model.OutputType) model.AgentOutputEvent {
	event := model.AgentOutputEvent{
		AgentID:   ap.ID,
		Content:   line,
		Timestamp: time.Now(),
		Metadata: model.EventMetadata{
			ByteSize:  len(line),
			LineCount: 1,
		},
	}
	if forceType != "" {
		event.Type = forceType
		return event
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		event.Type = model.OutputPlain
		return event
	}
	event.ParsedJSON = parsed

	if t, ok := parsed["type"].(string); ok {
		switch t {
		case "assistant", "user", "system", "result", "stream_event":
			event.Type = model.OutputType(t)
		default:
			event.Type = model.OutputUnknown
		}
	} else if _, hasResult := parsed["result"]; hasResult {
		event.Type = model.OutputResult
	} else {
		event.Type = model.OutputUnknown
	}

	if sid, ok := parsed["session_id"].(string); ok && sid != "" {
		event.SessionID = sid
		ap.mu.Lock()
		if ap.sessionID == "" {
			ap.sessionID = sid
		}
		ap.mu.Unlock()
	}
	if uid, ok := parsed["uuid"].(string); ok {
		event.UUID = uid
	}
	if pt, ok := parsed["parent_tool_use_id"].(string); ok {
		event.ParentToolUseID = pt
	}
	if sub, ok := parsed["subtype"].(string); ok {
		event.Subtype = sub
	}
	return event
}

func (ap *AgentProcess) applyStatistics(event model.AgentOutputEvent) {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	ap.stats.TotalOutputBytes += int64(event.Metadata.ByteSize)

	switch event.Type {
	case model.OutputAssistant, model.OutputUser:
		if hasNonEmptyText(event.ParsedJSON) {
			ap.stats.TotalPrompts++
		}
		if hasToolUse(event.ParsedJSON) {
			ap.stats.TotalToolCalls++
		}
	case model.OutputResult:
		applyUsage(&ap.stats, event.ParsedJSON)
	}
}

func hasNonEmptyText(parsed any) bool {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return false
	}
	msg, ok := obj["message"].(map[string]any)
	if !ok {
		return false
	}
	content, ok := msg["content"].([]any)
	if !ok {
		return false
	}
	for _, c := range content {
		block, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if block["type"] == "text" {
			if text, ok := block["text"].(string); ok && text != "" {
				return true
			}
		}
	}
	return false
}

func hasToolUse(parsed any) bool {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return false
	}
	msg, ok := obj["message"].(map[string]any)
	if !ok {
		return false
	}
	content, ok := msg["content"].([]any)
	if !ok {
		return false
	}
	for _, c := range content {
		if block, ok := c.(map[string]any); ok && block["type"] == "tool_use" {
			return true
		}
	}
	return false
}

func applyUsage(stats *Statistics, parsed any) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return
	}
	usage, ok := obj["usage"].(map[string]any)
	if !ok {
		return
	}
	modelName, _ := obj["model"].(string)
	if modelName == "" {
		modelName = "unknown"
	}
	var tokens int64
	var cost float64
	if v, ok := usage["total_tokens"].(float64); ok {
		tokens = int64(v)
	}
	if v, ok := obj["total_cost_usd"].(float64); ok {
		cost = v
	}
	stats.TotalTokensUsed += tokens
	stats.TotalCostUSD += cost

	mu, ok := stats.PerModelUsage[modelName]
	if !ok {
		mu = &model.ModelUsage{Model: modelName}
		stats.PerModelUsage[modelName] = mu
	}
	mu.InputTokens += tokens
	mu.CostUSD += cost
}

func (ap *AgentProcess) bufferEvent(event model.AgentOutputEvent) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.outputBuffer = append(ap.outputBuffer, event)
	if over := len(ap.outputBuffer) - outputBufferCap; over > 0 {
		ap.outputBuffer = ap.outputBuffer[over:]
	}
}
