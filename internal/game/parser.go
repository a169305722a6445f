package game

import (
	"regexp"
	"strings"
)

// ActionKind tags one parsed unit of participant intent.
type ActionKind string

const (
	ActionMove         ActionKind = "move"
	ActionOfferDraw    ActionKind = "offer_draw"
	ActionAcceptDraw   ActionKind = "accept_draw"
	ActionResign       ActionKind = "resign"
	ActionUnrecognized ActionKind = "unrecognized"
)

// MoveRequest is the payload of an ActionMove. All three fields are already
// validated lowercase square/piece syntax; a parse failure yields
// ActionUnrecognized, never a half-filled MoveRequest.
type MoveRequest struct {
	From      string
	To        string
	Promotion string
}

// Action binds a parsed command to its originating message and author.
type Action struct {
	MessageID string
	Actor     string
	Kind      ActionKind
	Move      *MoveRequest
}

var moveRe = regexp.MustCompile(`(?i)^chess:\s*move\s+([a-h][1-8])\s+to\s+([a-h][1-8])(?:\s+promote\s+to\s+([qrbn]))?\b`)

// ParseAction classifies one inbound message body. Matching is
// case-insensitive and anchored on the fixed command vocabulary.
func ParseAction(messageID, actor, body string) Action {
	act := Action{MessageID: messageID, Actor: strings.TrimSpace(actor), Kind: ActionUnrecognized}
	text := strings.TrimSpace(body)
	lower := strings.ToLower(text)

	switch {
	case strings.HasPrefix(lower, "chess: move"), strings.HasPrefix(lower, "chess:move"):
		m := moveRe.FindStringSubmatch(text)
		if m == nil {
			return act
		}
		// a promotion clause that failed to capture a piece letter means
		// the command was malformed, not a plain move
		if m[3] == "" && strings.HasPrefix(strings.TrimSpace(lower[len(m[0]):]), "promote") {
			return act
		}
		act.Kind = ActionMove
		act.Move = &MoveRequest{
			From:      strings.ToLower(m[1]),
			To:        strings.ToLower(m[2]),
			Promotion: strings.ToLower(m[3]),
		}
	case hasCommand(lower, "chess: offer draw"):
		act.Kind = ActionOfferDraw
	case hasCommand(lower, "chess: accept draw"):
		act.Kind = ActionAcceptDraw
	case hasCommand(lower, "chess: resign"):
		act.Kind = ActionResign
	}
	return act
}

func hasCommand(lower, cmd string) bool {
	if !strings.HasPrefix(lower, cmd) {
		return false
	}
	rest := lower[len(cmd):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\n' || rest[0] == '.' || rest[0] == '!'
}
