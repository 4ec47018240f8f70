package session

import (
	"context"
	"log/slog"

	"github.com/ReylordDev/LocalFlow/internal/audio"
	"github.com/ReylordDev/LocalFlow/internal/protocol"
)

// handleRequest serves one request. It never changes the session status.
func (c *Controller) handleRequest(ctx context.Context, req protocol.Request) (any, error) {
	switch r := req.(type) {
	case protocol.GetModes:
		modes, err := c.store.ListModes(ctx)
		return nonNil(modes), err
	case protocol.GetMode:
		return c.store.GetMode(ctx, r.ModeID)
	case protocol.CreateMode:
		mode, err := c.store.CreateMode(ctx, r.Mode)
		if err != nil {
			return nil, err
		}
		c.refreshModeQuietly(ctx)
		return mode, nil
	case protocol.UpdateMode:
		mode, err := c.store.UpdateMode(ctx, r.Update)
		if err != nil {
			return nil, err
		}
		c.refreshModeQuietly(ctx)
		return mode, nil
	case protocol.DeleteMode:
		if err := c.store.DeleteMode(ctx, r.ModeID); err != nil {
			return nil, err
		}
		c.refreshModeQuietly(ctx)
		modes, err := c.store.ListModes(ctx)
		return nonNil(modes), err
	case protocol.ActivateMode:
		if err := c.store.ActivateMode(ctx, r.ModeID); err != nil {
			return nil, err
		}
		c.refreshModeQuietly(ctx)
		modes, err := c.store.ListModes(ctx)
		return nonNil(modes), err
	case protocol.GetResults:
		results, err := c.store.ListResults(ctx)
		return nonNil(results), err
	case protocol.DeleteResult:
		if err := c.store.DeleteResult(ctx, r.ResultID); err != nil {
			return nil, err
		}
		results, err := c.store.ListResults(ctx)
		return nonNil(results), err
	case protocol.AddExample:
		example, err := c.store.AddExample(ctx, r.PromptID, r.Example)
		if err != nil {
			return nil, err
		}
		c.refreshModeQuietly(ctx)
		return example, nil
	case protocol.GetVoiceModels:
		models, err := c.store.ListVoiceModels(ctx)
		return nonNil(models), err
	case protocol.GetLanguageModels:
		models, err := c.store.ListLanguageModels(ctx)
		return nonNil(models), err
	case protocol.GetTextReplacements:
		replacements, err := c.store.ListTextReplacements(ctx)
		return nonNil(replacements), err
	case protocol.CreateTextReplacement:
		if _, err := c.store.CreateTextReplacement(ctx, r.Replacement); err != nil {
			return nil, err
		}
		replacements, err := c.store.ListTextReplacements(ctx)
		return nonNil(replacements), err
	case protocol.DeleteTextReplacement:
		if err := c.store.DeleteTextReplacement(ctx, r.ReplacementID); err != nil {
			return nil, err
		}
		replacements, err := c.store.ListTextReplacements(ctx)
		return nonNil(replacements), err
	case protocol.GetDevices:
		devices, err := c.recorder.Devices(ctx)
		return nonNil(devices), err
	case protocol.SetDevice:
		if c.Status() != StatusIdle {
			return nil, audio.ErrDeviceBusy
		}
		return c.recorder.SetDevice(ctx, r.Device.Index)
	default:
		return nil, protocol.ErrUnknownChannel
	}
}

func (c *Controller) refreshModeQuietly(ctx context.Context) {
	if err := c.refreshMode(ctx); err != nil {
		c.logger.Warn("refresh active mode failed", slogError(err))
		return
	}
	c.logger.Debug("active mode refreshed", slog.String("mode", c.mode.Name))
}
