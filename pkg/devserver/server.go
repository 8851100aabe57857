// Package devserver is an in-memory implementation of the family tasks
// backend API, for local development and end-to-end tests.
package devserver

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const dayLayout = "2006-01-02"

var statuses = map[string]bool{"todo": true, "in_progress": true, "completed": true, "cancelled": true}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Login     string `json:"login"`
	Role      string `json:"role"`
	Coins     int    `json:"coins"`

	password  string
	parent    int64
	age       int
	createdAt string
}

// Member is a family member as the profile endpoints report it.
type Member struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ChildName string `json:"child_name,omitempty"`
	Age       int    `json:"age,omitempty"`
	Coins     int    `json:"coins"`
	CreatedAt string `json:"created_at"`
}

type Task struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Coins          int    `json:"coins"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	IsRepeating    bool   `json:"is_repeating"`
	AssignedToID   int64  `json:"assigned_to_id,omitempty"`
	AssignedToName string `json:"assigned_to_name,omitempty"`
	CreatedBy      int64  `json:"created_by"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type Options struct {
	// PublicURL is advertised on /api/cloudflare-info when set.
	PublicURL string
	Logger    *log.Logger
}

type Server struct {
	router *gin.Engine
	opts   Options

	mu     sync.Mutex
	users  map[int64]*User
	tokens map[string]int64
	tasks  map[int64]*Task
	nextID int64
	now    func() time.Time
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Server{
		opts:   opts,
		users:  map[int64]*User{},
		tokens: map[string]int64{},
		tasks:  map[int64]*Task{},
		now:    time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/cloudflare-info", s.handleCloudflareInfo)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("", s.requireToken)
	authed.GET("/auth/validate", s.handleValidate)
	authed.POST("/auth/logout", s.handleLogout)
	authed.GET("/tasks", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PATCH("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
	authed.GET("/profile", s.handleProfile)
	authed.GET("/family", s.handleFamily)
	authed.GET("/users/children", s.handleChildren)
	authed.POST("/children/create", s.handleCreateChild)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.opts.Logger.Printf("devserver: listening on %s", addr)
	return s.router.Run(addr)
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(login, password, firstName, role string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.users) + 1)
	s.users[id] = &User{
		ID:        id,
		FirstName: firstName,
		Login:     login,
		Role:      role,
		password:  password,
		createdAt: s.now().UTC().Format(time.RFC3339),
	}
	return id
}

// IssueToken creates a session for user id without a login round trip.
func (s *Server) IssueToken(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := uuid.NewString()
	s.tokens[tok] = userID
	return tok
}

func (s *Server) requireToken(c *gin.Context) {
	tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	tok = strings.TrimSpace(tok)
	s.mu.Lock()
	uid, known := s.tokens[tok]
	s.mu.Unlock()
	if !ok || !known {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}
	c.Set("user_id", uid)
	c.Set("token", tok)
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleCloudflareInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"is_cloudflare": s.opts.PublicURL != "",
		"public_url":    s.opts.PublicURL,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		Login      string `json:"login"`
		Password   string `json:"password"`
		DeviceInfo string `json:"device_info"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	var user *User
	for _, u := range s.users {
		if u.Login == req.Login && u.password == req.Password {
			user = u
			break
		}
	}
	var tok string
	if user != nil {
		tok = uuid.NewString()
		s.tokens[tok] = user.ID
		copied := *user
		user = &copied
	}
	s.mu.Unlock()

	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid login or password"})
		return
	}
	s.opts.Logger.Printf("devserver: %s signed in from %q", user.Login, req.DeviceInfo)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful", "token": tok, "user": user})
}

func (s *Server) handleValidate(c *gin.Context) {
	s.mu.Lock()
	var user User
	if u, ok := s.users[c.GetInt64("user_id")]; ok {
		user = *u
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": user})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.mu.Lock()
	delete(s.tokens, c.GetString("token"))
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

func (s *Server) handleListTasks(c *gin.Context) {
	typ, status, date := c.Query("type"), c.Query("status"), c.Query("date")

	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if typ != "" && t.Type != typ {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		if date != "" && (date < t.StartDate || date > t.EndDate) {
			continue
		}
		out = append(out, *t)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, gin.H{"success": true, "tasks": out})
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Type        string `json:"type"`
		Coins       int    `json:"coins"`
		StartDate   string `json:"start_date"`
		EndDate     string `json:"end_date"`
		IsRepeating bool   `json:"is_repeating"`
		ChildID     int64  `json:"child_id"`
		ChildName   string `json:"child_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = "personal"
	}
	if msg := validateTask(req.Title, req.Description, req.Type, req.Coins, req.StartDate, req.EndDate); msg != "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": msg})
		return
	}

	now := s.now().UTC().Format("2006-01-02T15:04:05.000000")
	s.mu.Lock()
	s.nextID++
	t := &Task{
		ID:             s.nextID,
		Title:          req.Title,
		Description:    req.Description,
		Type:           req.Type,
		Status:         "todo",
		Coins:          req.Coins,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		IsRepeating:    req.IsRepeating,
		AssignedToID:   req.ChildID,
		AssignedToName: req.ChildName,
		CreatedBy:      c.GetInt64("user_id"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.tasks[t.ID] = t
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task created", "task_id": t.ID})
}

func validateTask(title, description, typ string, coins int, start, end string) string {
	switch {
	case len(title) < 1 || len(title) > 255:
		return "title must be 1-255 characters"
	case len(description) > 500:
		return "description must be at most 500 characters"
	case typ != "personal" && typ != "child" && typ != "family":
		return "type must be personal, child or family"
	case coins < 0:
		return "coins must not be negative"
	}
	for _, d := range []string{start, end} {
		if _, err := time.Parse(dayLayout, d); err != nil {
			return "dates must be YYYY-MM-DD"
		}
	}
	if end < start {
		return "end_date is before start_date"
	}
	return ""
}

func (s *Server) taskParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid task id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := s.taskParam(c)
	if !ok {
		return
	}
	s.mu.Lock()
	t, found := s.tasks[id]
	var out Task
	if found {
		out = *t
	}
	s.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": out})
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := s.taskParam(c)
	if !ok {
		return
	}
	var req struct {
		Status      *string `json:"status"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if req.Status != nil && !statuses[*req.Status] {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "invalid status " + strconv.Quote(*req.Status)})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[id]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	if req.Status != nil {
		if *req.Status == "completed" && t.Status != "completed" {
			s.award(t)
		}
		t.Status = *req.Status
	}
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	t.UpdatedAt = s.now().UTC().Format("2006-01-02T15:04:05.000000")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task updated"})
}

// award credits a completed task's coins to its assignee, or its creator.
func (s *Server) award(t *Task) {
	uid := t.AssignedToID
	if uid == 0 {
		uid = t.CreatedBy
	}
	if u, ok := s.users[uid]; ok {
		u.Coins += t.Coins
	}
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := s.taskParam(c)
	if !ok {
		return
	}
	s.mu.Lock()
	_, found := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task deleted"})
}

func (u *User) member() Member {
	m := Member{ID: u.ID, Name: u.FirstName, Age: u.age, Coins: u.Coins, CreatedAt: u.createdAt}
	if u.Role == "child" {
		m.ChildName = u.FirstName
	}
	return m
}

// childrenOf returns the children registered by parent, ordered by id.
// Callers hold s.mu.
func (s *Server) childrenOf(parent int64) []Member {
	out := []Member{}
	for _, u := range s.users {
		if u.parent == parent {
			out = append(out, u.member())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) handleProfile(c *gin.Context) {
	uid := c.GetInt64("user_id")
	s.mu.Lock()
	u, ok := s.users[uid]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		return
	}
	user := *u
	children := s.childrenOf(uid)
	count := 0
	for _, t := range s.tasks {
		if t.CreatedBy == uid || t.AssignedToID == uid {
			count++
		}
	}
	s.mu.Unlock()

	total := user.Coins
	for _, m := range children {
		total += m.Coins
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": gin.H{
		"user":        user,
		"children":    children,
		"tasks_count": count,
		"total_coins": total,
	}})
}

// handleFamily lists the head of the family followed by their children. A
// child sees the same list as their parent.
func (s *Server) handleFamily(c *gin.Context) {
	s.mu.Lock()
	head, ok := s.users[c.GetInt64("user_id")]
	if ok && head.parent != 0 {
		if p, found := s.users[head.parent]; found {
			head = p
		}
	}
	var family []Member
	if ok {
		family = append([]Member{head.member()}, s.childrenOf(head.ID)...)
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "family": family})
}

func (s *Server) handleChildren(c *gin.Context) {
	s.mu.Lock()
	children := s.childrenOf(c.GetInt64("user_id"))
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "children": children})
}

func (s *Server) handleCreateChild(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 100 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "name must be 1-100 characters"})
		return
	}
	if req.Age < 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "age must not be negative"})
		return
	}

	uid := c.GetInt64("user_id")
	s.mu.Lock()
	parent, ok := s.users[uid]
	if !ok || parent.Role == "child" {
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Only parents can add children"})
		return
	}
	id := int64(len(s.users) + 1)
	s.users[id] = &User{
		ID:        id,
		FirstName: req.Name,
		Role:      "child",
		parent:    uid,
		age:       req.Age,
		createdAt: s.now().UTC().Format(time.RFC3339),
	}
	s.mu.Unlock()

	s.opts.Logger.Printf("devserver: user %d added child %q", uid, req.Name)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Child created", "child_name": req.Name, "child_id": id})
}
