package service

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	registrystore "github.com/consulta/advisor-service/internal/registry/store"
	registryvector "github.com/consulta/advisor-service/internal/registry/vector"
)

// TaskProcessor drains the durable task queue. Work that must survive a
// restart goes through the queue instead of running inline in a handler;
// today that is vector index cleanup after a conversation delete.
type TaskProcessor struct {
	store    registrystore.AdvisorStore
	handlers map[string]taskHandler
	interval time.Duration
	// retryDelay spaces out attempts for a failing task so one bad payload
	// cannot hot-loop against an unavailable backend.
	retryDelay time.Duration
	batchSize  int
}

type taskHandler func(ctx context.Context, body map[string]any) error

// NewTaskProcessor wires the known task types. Unknown types found in the
// queue fail and stay for inspection rather than being dropped.
func NewTaskProcessor(store registrystore.AdvisorStore, vector registryvector.VectorStore) *TaskProcessor {
	p := &TaskProcessor{
		store:      store,
		interval:   1 * time.Minute,
		retryDelay: 10 * time.Minute,
		batchSize:  100,
	}
	p.handlers = map[string]taskHandler{
		"vector_store_delete": func(ctx context.Context, body map[string]any) error {
			return dropConversationVectors(ctx, vector, body)
		},
	}
	return p
}

// Start polls until ctx is cancelled.
func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainReady(ctx)
		}
	}
}

func (p *TaskProcessor) drainReady(ctx context.Context) {
	tasks, err := p.store.ClaimReadyTasks(ctx, p.batchSize)
	if err != nil {
		log.Error("TaskProcessor: claim tasks failed", "err", err)
		return
	}
	for _, task := range tasks {
		if err := p.runOne(ctx, task.TaskType, task.TaskBody); err != nil {
			log.Error("TaskProcessor: task failed", "taskId", task.ID, "type", task.TaskType, "err", err)
			if fErr := p.store.FailTask(ctx, task.ID, err.Error(), p.retryDelay); fErr != nil {
				log.Error("TaskProcessor: record failure failed", "taskId", task.ID, "err", fErr)
			}
			continue
		}
		if dErr := p.store.DeleteTask(ctx, task.ID); dErr != nil {
			log.Error("TaskProcessor: delete task failed", "taskId", task.ID, "err", dErr)
		}
	}
}

func (p *TaskProcessor) runOne(ctx context.Context, taskType string, body map[string]any) error {
	handler, ok := p.handlers[taskType]
	if !ok {
		return fmt.Errorf("unknown task type: %s", taskType)
	}
	return handler(ctx, body)
}

func dropConversationVectors(ctx context.Context, vector registryvector.VectorStore, body map[string]any) error {
	if vector == nil || !vector.IsEnabled() {
		// Nothing indexed, nothing to clean up.
		return nil
	}
	idStr, ok := body["conversationId"].(string)
	if !ok {
		return fmt.Errorf("task body has no conversationId")
	}
	conversationID, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("bad conversationId %q: %w", idStr, err)
	}
	return vector.DeleteByConversationID(ctx, conversationID)
}
