package dashboard

import (
	"context"
	"fmt"
	"slices"

	"github.com/prepbrain/prepdeck/internal/controlplane"
	"github.com/prepbrain/prepdeck/internal/state"
)

// CommandKind separates commands that wait for the control plane and then
// reconcile from commands that flip local state first and call out later.
type CommandKind int

const (
	// KindReconcile awaits the call, then reloads the affected state.
	KindReconcile CommandKind = iota
	// KindOptimistic updates local state at once and runs the call in the
	// background without blocking the caller.
	KindOptimistic
)

func (k CommandKind) String() string {
	switch k {
	case KindReconcile:
		return "reconcile"
	case KindOptimistic:
		return "optimistic"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

var (
	botActions    = []string{"start", "stop", "restart"}
	ollamaActions = []string{"start", "stop"}
)

// ControlBot starts, stops or restarts the bot.
func (c *Controller) ControlBot(ctx context.Context, action string) error {
	if !slices.Contains(botActions, action) {
		return c.reject(fmt.Sprintf("Unknown bot action %q.", action))
	}
	return c.toggle(ctx, controlplane.TargetBot, "Bot", action)
}

// ControlOllama starts or stops the LLM backend.
func (c *Controller) ControlOllama(ctx context.Context, action string) error {
	if !slices.Contains(ollamaActions, action) {
		return c.reject(fmt.Sprintf("Unknown Ollama action %q.", action))
	}
	return c.toggle(ctx, controlplane.TargetOllama, "Ollama", action)
}

// toggle is a reconcile command: one POST, then the status reload (and the
// log reload for bot actions) whatever the POST returned.
func (c *Controller) toggle(ctx context.Context, target, label, action string) error {
	name := label + " " + action
	c.store.Dispatch(state.SetProcessing{On: true})
	defer c.store.Dispatch(state.SetProcessing{On: false})

	res, err := c.client.Control(ctx, target, action)

	_ = c.LoadStatus(ctx)
	if target == controlplane.TargetBot {
		_ = c.LoadLogs(ctx)
	}

	c.settle(ctx, KindReconcile, name, res.Message, err)
	return err
}

// settle writes the command outcome to the banner and the journal. It runs
// after any reloads so the outcome is the last thing the operator sees.
func (c *Controller) settle(ctx context.Context, kind CommandKind, name, serverMsg string, err error) {
	if err != nil {
		c.fail(name + " failed: " + Message(err))
	} else {
		msg := serverMsg
		if msg == "" {
			msg = name + " executed."
		}
		c.notify(msg)
	}
	c.record(ctx, kind, name, err, Message(err))
}

type sequenceStep struct {
	name string
	run  func(context.Context) error
}

// ExecuteSequence starts Ollama, restarts the bot, then reloads status and
// logs. A failing control step ends the run and its message is surfaced
// alone. Nothing is rolled back: if the bot restart fails Ollama stays up.
// The reloads are ordinary loads: each one runs regardless of the other and
// reports its own failure, which then stays in the banner.
func (c *Controller) ExecuteSequence(ctx context.Context) error {
	c.store.Dispatch(state.SetProcessing{On: true})
	defer c.store.Dispatch(state.SetProcessing{On: false})

	steps := []sequenceStep{
		{"start ollama", func(ctx context.Context) error {
			_, err := c.client.Control(ctx, controlplane.TargetOllama, "start")
			return err
		}},
		{"restart bot", func(ctx context.Context) error {
			_, err := c.client.Control(ctx, controlplane.TargetBot, "restart")
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			c.logger.Warn("sequence step failed", "step", step.name, "error", err)
			c.fail("Sequence failed: " + Message(err))
			c.record(ctx, KindReconcile, "Sequence", err, step.name+": "+Message(err))
			return err
		}
	}

	statusErr := c.LoadStatus(ctx)
	logsErr := c.LoadLogs(ctx)
	if statusErr == nil && logsErr == nil {
		c.notify("Sequence complete.")
	}
	c.record(ctx, KindReconcile, "Sequence", nil, "")
	return nil
}

// EmergencyStop clears the processing flag and raises the notice before
// returning, then stops the bot in the background. The stop call outlives
// ctx cancellation but is bounded by Options.StopTimeout. Call Wait to
// block until it lands.
func (c *Controller) EmergencyStop(ctx context.Context) {
	c.store.Dispatch(state.SetProcessing{On: false})
	c.notify("Emergency stop issued.")

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StopTimeout)
		defer cancel()

		_, err := c.client.Control(stopCtx, controlplane.TargetBot, "stop")
		_ = c.LoadStatus(stopCtx)
		if err != nil {
			c.fail("Emergency stop failed: " + Message(err))
		}
		c.record(stopCtx, KindOptimistic, "Emergency stop", err, Message(err))
	}()
}

// StartAutonomy and StopAutonomy drive the autonomy loop. The control plane
// may refuse with a detail message, which is surfaced verbatim.
func (c *Controller) StartAutonomy(ctx context.Context) error {
	return c.autonomy(ctx, "start")
}

func (c *Controller) StopAutonomy(ctx context.Context) error {
	return c.autonomy(ctx, "stop")
}

func (c *Controller) autonomy(ctx context.Context, action string) error {
	name := "Autonomy " + action
	res, err := c.client.ControlAutonomy(ctx, action)
	_ = c.LoadAutonomy(ctx)
	c.settle(ctx, KindReconcile, name, res.Message, err)
	return err
}

// reject surfaces a validation failure without touching the network.
func (c *Controller) reject(msg string) error {
	c.fail(msg)
	return invalid(msg)
}
