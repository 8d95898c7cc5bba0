package live

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vedant-vijay/community-platform/internal/domain"
	"github.com/vedant-vijay/community-platform/internal/view"
)

// postMessage is a post as rendered by the browser.
type postMessage struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	Initials   string `json:"initials"`
	CreatedAt  string `json:"createdAt,omitempty"`
	Ago        string `json:"ago"`
}

// feedMessage is pushed on every feed view change.
type feedMessage struct {
	Type        string        `json:"type"`
	PostsStatus string        `json:"postsStatus"`
	PostsError  string        `json:"postsError,omitempty"`
	Posts       []postMessage `json:"posts"`
	SignedIn    bool          `json:"signedIn"`
	Compose     string        `json:"compose"`
	Error       string        `json:"error,omitempty"`
	Draft       string        `json:"draft"`
}

type userMessage struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Bio   string `json:"bio"`
}

// profileMessage is pushed on every profile view change.
type profileMessage struct {
	Type        string        `json:"type"`
	Profile     string        `json:"profile"`
	Error       string        `json:"error,omitempty"`
	User        *userMessage  `json:"user,omitempty"`
	IsOwn       bool          `json:"isOwn"`
	PostsStatus string        `json:"postsStatus"`
	PostsError  string        `json:"postsError,omitempty"`
	Posts       []postMessage `json:"posts"`
}

// inboundMessage is sent by the browser.
type inboundMessage struct {
	Type  string `json:"type"`
	Draft string `json:"draft"`
}

func parseInbound(data []byte) (*inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}
	return &msg, nil
}

func newPostMessages(posts []domain.Post) []postMessage {
	out := make([]postMessage, len(posts))
	for i, p := range posts {
		out[i] = postMessage{
			ID:         p.ID,
			Content:    p.Content,
			AuthorID:   p.AuthorID,
			AuthorName: view.DisplayAuthor(p.AuthorName),
			Initials:   view.Initials(p.AuthorName),
			Ago:        view.Ago(p.CreatedAt),
		}
		if !p.CreatedAt.IsZero() {
			out[i].CreatedAt = p.CreatedAt.Format(time.RFC3339)
		}
	}
	return out
}

func newFeedMessage(st view.FeedState) feedMessage {
	return feedMessage{
		Type:        "feed",
		PostsStatus: st.PostsStatus.String(),
		PostsError:  st.PostsError,
		Posts:       newPostMessages(st.Posts),
		SignedIn:    st.Viewer != nil,
		Compose:     st.Compose.String(),
		Error:       st.Error,
		Draft:       st.Draft,
	}
}

func newProfileMessage(st view.ProfileState) profileMessage {
	msg := profileMessage{
		Type:        "profile",
		Profile:     st.Profile.String(),
		Error:       st.Error,
		IsOwn:       st.IsOwn(),
		PostsStatus: st.PostsStatus.String(),
		PostsError:  st.PostsError,
		Posts:       newPostMessages(st.Posts),
	}
	if st.Profile == view.ProfileReady {
		msg.User = &userMessage{
			ID:    st.User.ID,
			Name:  st.User.Name,
			Email: st.User.Email,
			Bio:   st.User.Bio,
		}
	}
	return msg
}
