package client

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/backup"
	"github.com/joelmale/nexus/internal/dice"
	"github.com/joelmale/nexus/internal/protocol"
)

// Local mutations and remote events share one code path: every mutator
// builds a GameEvent, applies it to the store, then broadcasts it. The
// room echoes it back with our src, and the router drops the echo.

func (c *Client) broadcast(ev protocol.GameEvent) {
	c.store.ApplyEvent(ev)
	msg, err := protocol.NewEventMessage(c.store.PlayerID(), ev)
	if err != nil {
		c.log.Error("build event frame", zap.Error(err))
		return
	}
	c.Send(msg)
}

// UpdateCamera moves the shared viewport.
func (c *Client) UpdateCamera(cam protocol.Camera) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventCameraUpdate, Camera: &cam})
}

// CreateScene adds a new scene and returns it.
func (c *Client) CreateScene(name, mapURL string, gridSize int) protocol.Scene {
	sc := protocol.Scene{
		ID:       uuid.NewString(),
		Name:     name,
		MapURL:   mapURL,
		GridSize: gridSize,
		Tokens:   []protocol.PlacedToken{},
	}
	c.broadcast(protocol.GameEvent{Name: protocol.EventSceneCreate, Scene: &sc})
	return sc
}

// UpdateScene replaces a scene wholesale.
func (c *Client) UpdateScene(sc protocol.Scene) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventSceneUpdate, Scene: &sc})
}

// DeleteScene removes a scene; the active scene is cleared if it was
// the one deleted.
func (c *Client) DeleteScene(sceneID string) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventSceneDelete, SceneID: sceneID})
}

// ActivateScene makes a scene the live one for the whole table.
func (c *Client) ActivateScene(sceneID string) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventSceneActivate, SceneID: sceneID})
}

// AddToken places a token on a scene, minting an id if the caller
// didn't set one, and returns the placed token.
func (c *Client) AddToken(sceneID string, token protocol.PlacedToken) protocol.PlacedToken {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.Scale == 0 {
		token.Scale = 1
	}
	c.broadcast(protocol.GameEvent{Name: protocol.EventTokenAdd, SceneID: sceneID, Token: &token})
	return token
}

// UpdateToken replaces a placed token (position, rotation, scale, ...).
func (c *Client) UpdateToken(sceneID string, token protocol.PlacedToken) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventTokenUpdate, SceneID: sceneID, Token: &token})
}

// RemoveToken takes a token off a scene.
func (c *Client) RemoveToken(sceneID, tokenID string) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventTokenRemove, SceneID: sceneID, TokenID: tokenID})
}

// AddDrawing lays a stroke on a scene and returns it.
func (c *Client) AddDrawing(sceneID string, d protocol.Drawing) protocol.Drawing {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedBy == "" {
		d.CreatedBy = c.store.PlayerID()
	}
	c.broadcast(protocol.GameEvent{Name: protocol.EventDrawingAdd, SceneID: sceneID, Drawing: &d})
	return d
}

// UndoDrawing removes a stroke by id, or the most recent one when id is
// empty.
func (c *Client) UndoDrawing(sceneID, drawingID string) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventDrawingUndo, SceneID: sceneID, DrawingID: drawingID})
}

// ClearDrawings wipes every stroke from a scene.
func (c *Client) ClearDrawings(sceneID string) {
	c.broadcast(protocol.GameEvent{Name: protocol.EventDrawingClear, SceneID: sceneID})
}

// RollDice resolves a dice expression locally, appends it to history,
// and broadcasts the result to the table.
func (c *Client) RollDice(expression string) (protocol.DiceRoll, error) {
	result, err := dice.RollExpr(expression)
	if err != nil {
		return protocol.DiceRoll{}, err
	}

	pools := make([]protocol.DicePool, len(result.Pools))
	for i, p := range result.Pools {
		pools[i] = protocol.DicePool{Sides: p.Sides, Results: p.Results, Total: p.Total}
	}

	roll := protocol.DiceRoll{
		ID:         uuid.NewString(),
		UserID:     c.store.PlayerID(),
		UserName:   c.playerName(),
		Expression: expression,
		Pools:      pools,
		Modifier:   result.Modifier,
		Total:      result.Total,
		Timestamp:  time.Now().UnixMilli(),
	}

	c.store.AddDiceRoll(roll)
	msg, err := protocol.NewDiceRollMessage(roll.UserID, roll)
	if err != nil {
		return roll, err
	}
	c.Send(msg)
	return roll, nil
}

func (c *Client) playerName() string {
	if sess := c.store.Session(); sess != nil {
		if p := sess.FindPlayer(c.store.PlayerID()); p != nil {
			return p.Name
		}
	}
	return c.opts.PlayerName
}

// ExportCampaign snapshots the current state into a portable backup
// document.
func (c *Client) ExportCampaign(campaign backup.Campaign) backup.Document {
	return backup.Build(c.store.State(), campaign)
}

// ImportCampaign replaces the current scene list with the document's.
// Callers confirm with the user first. The replacement is also pushed
// to the room so every peer converges.
func (c *Client) ImportCampaign(doc backup.Document) error {
	patch := backup.Restore(doc)
	c.store.ApplyPatch(patch)

	msg, err := protocol.NewStateMessage(patch)
	if err != nil {
		return err
	}
	msg.Src = c.store.PlayerID()
	c.Send(msg)
	return nil
}
