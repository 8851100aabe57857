package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/harrisonrobin/famtasks/pkg/auth"
)

// Member is a person in the signed in user's family.
type Member struct {
	ID        int64
	Name      string
	ChildName string
	Age       int
	Coins     int
	AvatarURL string
	CreatedAt time.Time
}

// Profile is the signed in user with their children and totals.
type Profile struct {
	User       auth.User
	Children   []Member
	TasksCount int
	TotalCoins int
}

type wireMember struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ChildName string `json:"child_name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Coins     int    `json:"coins"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (w wireMember) toMember() Member {
	return Member{
		ID:        w.ID,
		Name:      w.Name,
		ChildName: w.ChildName,
		Age:       w.Age,
		Coins:     w.Coins,
		AvatarURL: w.AvatarURL,
		CreatedAt: parseTime(w.CreatedAt),
	}
}

func toMembers(ws []wireMember) []Member {
	out := make([]Member, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.toMember())
	}
	return out
}

// Profile fetches the user's profile. A backend that leaves total_coins out
// gets it summed from the user and their children.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Profile *struct {
			User       auth.User    `json:"user"`
			Children   []wireMember `json:"children"`
			TasksCount int          `json:"tasks_count"`
			TotalCoins *int         `json:"total_coins"`
		} `json:"profile"`
	}
	if err := c.do(ctx, c.authed, "get profile", http.MethodGet, "/api/profile", nil, &resp); err != nil {
		return Profile{}, err
	}
	if !resp.Success || resp.Profile == nil {
		return Profile{}, &Error{Op: "get profile", Kind: ErrRejected, Message: resp.Message}
	}
	p := Profile{
		User:       resp.Profile.User,
		Children:   toMembers(resp.Profile.Children),
		TasksCount: resp.Profile.TasksCount,
	}
	if resp.Profile.TotalCoins != nil {
		p.TotalCoins = *resp.Profile.TotalCoins
	} else {
		p.TotalCoins = p.User.Coins
		for _, m := range p.Children {
			p.TotalCoins += m.Coins
		}
	}
	return p, nil
}

// Family lists every member of the user's family, the user included.
func (c *Client) Family(ctx context.Context) ([]Member, error) {
	var resp struct {
		Success bool         `json:"success"`
		Message string       `json:"message"`
		Family  []wireMember `json:"family"`
	}
	if err := c.do(ctx, c.authed, "list family", http.MethodGet, "/api/family", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "list family", Kind: ErrRejected, Message: resp.Message}
	}
	return toMembers(resp.Family), nil
}

func (c *Client) Children(ctx context.Context) ([]Member, error) {
	var resp struct {
		Success  bool         `json:"success"`
		Message  string       `json:"message"`
		Children []wireMember `json:"children"`
	}
	if err := c.do(ctx, c.authed, "list children", http.MethodGet, "/api/users/children", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "list children", Kind: ErrRejected, Message: resp.Message}
	}
	return toMembers(resp.Children), nil
}

// CreateChild adds a child account to the family and returns its id. A zero
// age is not sent.
func (c *Client) CreateChild(ctx context.Context, name string, age int) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &Error{Op: "create child", Kind: ErrRejected, Message: "name is required"}
	}
	req := struct {
		Name string `json:"name"`
		Age  int    `json:"age,omitempty"`
	}{name, age}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		ChildID int64  `json:"child_id"`
	}
	if err := c.do(ctx, c.authed, "create child", http.MethodPost, "/api/children/create", req, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, &Error{Op: "create child", Kind: ErrRejected, Message: resp.Message}
	}
	return resp.ChildID, nil
}
