package models

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// Comment is a public threaded remark on a listing (kind 1111),
// independent of the bidding mechanics
type Comment struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	RootID    string `json:"root_id"`             // the listing event
	ParentID  string `json:"parent_id,omitempty"` // optional parent comment
	EventID   string `json:"event_id"`
	CreatedAt int64  `json:"created_at"`
}

// DecodeComment decodes a kind 1111 event into a Comment. The root is the
// uppercase "E" tag when present, otherwise the first "e" tag; any further
// "e" tag is the parent comment.
func DecodeComment(ev *nostr.Event) (*Comment, error) {
	if ev.Kind != KindComment {
		return nil, fmt.Errorf("unexpected kind %d for comment", ev.Kind)
	}
	if ev.Content == "" {
		return nil, fmt.Errorf("comment %s has no content", ev.ID)
	}

	root := FirstTagValue(ev, "E")
	refs := TagValues(ev, "e")
	if root == "" && len(refs) > 0 {
		root = refs[0]
		refs = refs[1:]
	}
	if root == "" {
		return nil, fmt.Errorf("comment %s references no root", ev.ID)
	}

	comment := &Comment{
		Content:   ev.Content,
		Author:    ev.PubKey,
		RootID:    root,
		EventID:   ev.ID,
		CreatedAt: int64(ev.CreatedAt),
	}
	for _, ref := range refs {
		if ref != root {
			comment.ParentID = ref
			break
		}
	}
	return comment, nil
}
