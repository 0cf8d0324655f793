package app

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"corkboard/api/internal/auth"
	"corkboard/api/internal/authpw"
	"corkboard/api/internal/board"
	"corkboard/api/internal/config"
	"corkboard/api/internal/email"
	"corkboard/api/internal/export"
	"corkboard/api/internal/rbac"
	"corkboard/api/internal/search"
	"corkboard/api/internal/store"
	"corkboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	IsExternal   bool
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	CreateBoard(context.Context, store.BoardRecord) error
	GetBoard(context.Context, string) (store.BoardRecord, error)
	ListBoards(context.Context, string) ([]store.BoardRecord, error)
	DeleteBoard(context.Context, string) error
	AppendOps(context.Context, string, []board.Operation, string, int64) (int64, error)
	OpsSince(context.Context, string, int64) ([]store.OpsLogEntry, int64, error)
	ReplaceBoardDoc(context.Context, string, *board.Board) (int64, error)
	Ping(ctx context.Context) error
}

// sessionStore overrides where refresh tokens live (Redis in production,
// Postgres when Redis is not configured).
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type archiveService interface {
	EnsureBoardRepo(boardID string, doc *board.Board, author string) error
	CommitSnapshot(boardID string, doc *board.Board, message, author string) (store.CommitInfo, error)
	History(boardID string, limit int) ([]store.CommitInfo, error)
}

type imageStore interface {
	PutBackground(ctx context.Context, boardID, contentType string, data []byte) error
	// GetBackground returns (nil, "", nil) when no background is stored.
	GetBackground(ctx context.Context, boardID string) ([]byte, string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	archive  archiveService
	search   *search.Service
	authPw   *authpw.Service
	email    *email.Service
	images   imageStore
	exporter *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, archive archiveService, searchService *search.Service) *Service {
	s := &Service{
		cfg:     cfg,
		store:   dataStore,
		archive: archive,
		search:  searchService,
	}
	s.exporter = export.NewService(exportStoreAdapter{s})
	return s
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, archive archiveService, searchService *search.Service) *Service {
	s := New(cfg, dataStore, archive, searchService)
	s.sessions = sessions
	return s
}

// SetAuthPasswordService wires email/password auth; without it only the dev
// name login is available.
func (s *Service) SetAuthPasswordService(svc *authpw.Service) { s.authPw = svc }

func (s *Service) SetEmailService(svc *email.Service) { s.email = svc }

func (s *Service) SetImageStore(images imageStore) { s.images = images }

func (s *Service) AuthPasswordService() *authpw.Service { return s.authPw }

func (s *Service) EmailService() *email.Service { return s.email }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap runs startup work that may fail without blocking the server:
// currently a search reindex so Meilisearch catches up after downtime.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) refreshStore() sessionStore {
	if s.sessions != nil {
		return s.sessions
	}
	return s.store
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.IssueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.refreshStore().LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// the Redis backend only persists the user id
	if user.DisplayName == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.refreshStore().RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.IssueSession(ctx, user)
}

func (s *Service) IssueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refreshStore().SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		IsExternal:   user.IsExternal,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:      token,
		UserID:     user.ID,
		UserName:   user.DisplayName,
		Role:       user.Role,
		IsExternal: user.IsExternal,
		JTI:        claims.JTI,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.refreshStore().RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) CreateBoard(ctx context.Context, session Session, name string) (store.BoardRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.BoardRecord{}, domainError(422, "VALIDATION_ERROR", "name is required", nil)
	}

	record := store.BoardRecord{
		ID:      util.NewID("brd"),
		OwnerID: session.UserID,
		Doc:     board.Board{Name: name, Columns: []board.Column{}},
	}
	if err := s.store.CreateBoard(ctx, record); err != nil {
		return store.BoardRecord{}, err
	}

	if s.archive != nil {
		doc := record.Doc.Clone()
		go func() {
			if err := s.archive.EnsureBoardRepo(record.ID, doc, session.UserName); err != nil {
				log.Printf("archive: init board %s: %v", record.ID, err)
			}
		}()
	}
	s.indexBoard(record)
	return record, nil
}

func (s *Service) ListBoards(ctx context.Context, session Session) ([]store.BoardRecord, error) {
	return s.store.ListBoards(ctx, session.UserID)
}

func (s *Service) GetBoardSnapshot(ctx context.Context, boardID string) (store.BoardRecord, error) {
	return s.store.GetBoard(ctx, boardID)
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	record, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if record.OwnerID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(403, "FORBIDDEN", "Only the board owner can delete a board", nil)
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteBoard(boardID)
	}
	return nil
}

// PushOps commits one batch of client operations. The batch is validated
// before any transaction starts; clientRevision is recorded for forensics but
// deliberately not used to reject stale pushes (last-write-wins at the field
// level is the accepted conflict model).
func (s *Service) PushOps(ctx context.Context, session Session, boardID string, ops []board.Operation, clientRevision int64) (int64, error) {
	if len(ops) == 0 {
		return 0, domainError(422, "VALIDATION_ERROR", "ops must be a non-empty array", nil)
	}

	revision, err := s.store.AppendOps(ctx, boardID, ops, session.UserID, clientRevision)
	if err != nil {
		return 0, err
	}

	s.afterBoardWrite(boardID, session.UserName, revision)
	return revision, nil
}

// PullOps returns the flattened ops of every log entry past sinceRevision, in
// commit order, plus the current server revision.
func (s *Service) PullOps(ctx context.Context, boardID string, sinceRevision int64) ([]board.Operation, int64, error) {
	entries, serverRevision, err := s.store.OpsSince(ctx, boardID, sinceRevision)
	if err != nil {
		return nil, 0, err
	}
	ops := make([]board.Operation, 0)
	for _, entry := range entries {
		ops = append(ops, entry.Ops...)
	}
	return ops, serverRevision, nil
}

func (s *Service) ReplaceBoard(ctx context.Context, session Session, boardID string, doc *board.Board) (int64, error) {
	if doc == nil {
		return 0, domainError(422, "VALIDATION_ERROR", "board snapshot is required", nil)
	}
	if doc.Columns == nil {
		doc.Columns = []board.Column{}
	}
	revision, err := s.store.ReplaceBoardDoc(ctx, boardID, doc)
	if err != nil {
		return 0, err
	}
	s.afterBoardWrite(boardID, session.UserName, revision)
	return revision, nil
}

// afterBoardWrite runs the best-effort followers of a committed write:
// snapshot archive commit and search reindex. Neither may fail the push.
func (s *Service) afterBoardWrite(boardID, author string, revision int64) {
	if s.archive == nil && s.search == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		record, err := s.store.GetBoard(ctx, boardID)
		if err != nil {
			log.Printf("board %s: post-write read failed: %v", boardID, err)
			return
		}
		if s.archive != nil {
			message := "Revision " + strconv.FormatInt(revision, 10)
			if _, err := s.archive.CommitSnapshot(boardID, &record.Doc, message, author); err != nil {
				log.Printf("archive: commit board %s revision %d: %v", boardID, revision, err)
			}
		}
		s.indexBoard(record)
	}()
}

func (s *Service) indexBoard(record store.BoardRecord) {
	if s.search == nil {
		return
	}
	s.search.IndexBoard(record.ID, &record.Doc)
}

func (s *Service) History(ctx context.Context, boardID string, limit int) ([]store.CommitInfo, error) {
	if s.archive == nil {
		return []store.CommitInfo{}, nil
	}
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	return s.archive.History(boardID, limit)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) ExportBoard(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

func (s *Service) SetBackground(ctx context.Context, session Session, boardID, contentType string, data []byte) (int64, error) {
	if s.images == nil {
		return 0, domainError(503, "IMAGES_UNAVAILABLE", "Image storage not configured", nil)
	}
	if len(data) == 0 {
		return 0, domainError(422, "VALIDATION_ERROR", "image body is required", nil)
	}
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return 0, err
	}
	if err := s.images.PutBackground(ctx, boardID, contentType, data); err != nil {
		return 0, err
	}
	// record the reference in the document so it syncs like any other edit
	ref, err := json.Marshal("boards/" + boardID + "/background")
	if err != nil {
		return 0, err
	}
	return s.PushOps(ctx, session, boardID, []board.Operation{
		{Type: board.OpBoardBackgroundImage, Value: ref},
	}, 0)
}

func (s *Service) GetBackground(ctx context.Context, boardID string) ([]byte, string, error) {
	if s.images == nil {
		return nil, "", nil
	}
	return s.images.GetBackground(ctx, boardID)
}

// exportStoreAdapter feeds board documents to the export service without
// making the export package depend on the store.
type exportStoreAdapter struct {
	s *Service
}

func (a exportStoreAdapter) GetBoard(ctx context.Context, boardID string) (export.BoardInfo, error) {
	record, err := a.s.store.GetBoard(ctx, boardID)
	if err != nil {
		return export.BoardInfo{}, err
	}
	info := export.BoardInfo{
		ID:        record.ID,
		Name:      record.Doc.Name,
		Revision:  record.ServerRevision,
		UpdatedAt: record.UpdatedAt,
	}
	for _, col := range record.Doc.Columns {
		column := export.ColumnInfo{Title: col.Title}
		for _, card := range col.Cards {
			column.Cards = append(column.Cards, export.CardInfo{Title: card.Title, Description: card.Description})
		}
		info.Columns = append(info.Columns, column)
	}
	return info, nil
}
