package protocol

// Role identifies what a player is allowed to do in a room.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Player is one connected (or recently connected) member of a session.
// Identity is stable for the lifetime of the session; Connected toggles
// with transport state.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"type"`
	Connected bool   `json:"connected"`
}

// Session is the live multi-user room: its code plus everyone who has
// joined it.
type Session struct {
	RoomCode string   `json:"roomCode"`
	Players  []Player `json:"players"`
}

// FindPlayer returns the player with the given id, or nil.
func (s *Session) FindPlayer(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Camera is the shared viewport over the active scene.
type Camera struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Point is a 2D map coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlacedToken is a token instance placed on a scene.
type PlacedToken struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ImageURL string  `json:"imageUrl,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
}

// Drawing is a freehand stroke layered on a scene.
type Drawing struct {
	ID        string  `json:"id"`
	Points    []Point `json:"points"`
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
	CreatedBy string  `json:"createdBy,omitempty"`
}

// Scene is one map the group can play on, with its tokens and drawings.
type Scene struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	MapURL   string        `json:"mapUrl,omitempty"`
	GridSize int           `json:"gridSize,omitempty"`
	Tokens   []PlacedToken `json:"tokens"`
	Drawings []Drawing     `json:"drawings,omitempty"`
}

// DicePool holds the results of rolling every die of one size.
type DicePool struct {
	Sides   int   `json:"sides"`
	Results []int `json:"results"`
	Total   int   `json:"total"`
}

// MaxDiceHistory bounds the roll log kept on both sides of the wire;
// the oldest roll is evicted once a table has seen this many.
const MaxDiceHistory = 100

// DiceRoll is one resolved roll. Immutable once created.
type DiceRoll struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	Expression string     `json:"expression"`
	Pools      []DicePool `json:"pools"`
	Modifier   int        `json:"modifier,omitempty"`
	Total      int        `json:"total"`
	Timestamp  int64      `json:"timestamp"`
}

// GameState is everything a room synchronizes: who is here, the scenes,
// which scene is live, the shared camera, and recent rolls.
type GameState struct {
	Session       *Session   `json:"session,omitempty"`
	Scenes        []Scene    `json:"scenes"`
	ActiveSceneID string     `json:"activeSceneId,omitempty"`
	Camera        Camera     `json:"camera"`
	DiceRolls     []DiceRoll `json:"diceRolls,omitempty"`
}

// FindScene returns the scene with the given id, or nil.
func (g *GameState) FindScene(id string) *Scene {
	for i := range g.Scenes {
		if g.Scenes[i].ID == id {
			return &g.Scenes[i]
		}
	}
	return nil
}

// StatePatch is a partial top-level overwrite carried by a "state"
// frame. Nil fields are left untouched.
type StatePatch struct {
	Session       *Session    `json:"session,omitempty"`
	Scenes        *[]Scene    `json:"scenes,omitempty"`
	ActiveSceneID *string     `json:"activeSceneId,omitempty"`
	Camera        *Camera     `json:"camera,omitempty"`
	DiceRolls     *[]DiceRoll `json:"diceRolls,omitempty"`
}
