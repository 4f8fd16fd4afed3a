package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ykj/studio/internal/auth"
	"ykj/studio/internal/chat"
	"ykj/studio/internal/events"
	"ykj/studio/internal/gateway"
	"ykj/studio/internal/media"
	"ykj/studio/internal/model"
	"ykj/studio/internal/store"
	"ykj/studio/internal/workflow"

	"github.com/gin-gonic/gin"
)

type fakeGen struct {
	reg *media.Registry
}

func (g *fakeGen) GenerateVideo(_ context.Context, prompt string, _ *model.InputFile, _ model.AspectRatio, _ model.Quality) (model.Result, error) {
	ref := g.reg.Create([]byte("mp4"), "video/mp4")
	return model.Result{Kind: model.MediaVideo, Ref: ref, MimeType: "video/mp4", Prompt: prompt}, nil
}

func (g *fakeGen) GenerateImage(_ context.Context, prompt string, _ model.AspectRatio, _ model.Quality) (model.Result, error) {
	ref := g.reg.Create(pngBytes(), "image/png")
	return model.Result{Kind: model.MediaImage, Ref: ref, MimeType: "image/png", Prompt: prompt}, nil
}

func (g *fakeGen) EditImage(ctx context.Context, prompt string, _ model.InputFile) (model.Result, error) {
	return g.GenerateImage(ctx, prompt, model.AspectSquare, model.QualityStandard)
}

func (g *fakeGen) EditVideo(context.Context, string, model.InputFile) (model.Result, error) {
	return model.Result{}, &gateway.Error{Kind: gateway.KindUnsupportedOperation, Reason: "unsupported"}
}

func (g *fakeGen) StartChat(context.Context, string) (gateway.ChatSession, error) {
	return fakeSession{}, nil
}

type fakeSession struct{}

func (fakeSession) SendStream(context.Context, gateway.ChatInput) (gateway.TextStream, error) {
	return &fakeStream{chunks: []string{"**Try** ", "a sunset"}}, nil
}

type fakeStream struct {
	chunks []string
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *fakeStream) Close() error { return nil }

type noMixer struct{}

func (noMixer) MixAudioAndVideo(_ context.Context, ref model.Ref, _ string) (model.Ref, error) {
	return ref, nil
}

type fixture struct {
	router http.Handler
	flow   *workflow.Controller
	hub    *events.Hub
}

func setupTestRouter(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authSvc := auth.NewService(store.NewMemoryStore(), "test-secret", time.Hour, logger)
	reg := media.NewRegistry()
	hub := events.NewHub()
	gen := &fakeGen{reg: reg}
	chatMgr := chat.NewManager(gen, media.NewTracker(reg), hub, logger)
	flow := workflow.NewController(gen, noMixer{}, chatMgr, media.NewTracker(reg), hub, logger)
	t.Cleanup(func() { _ = flow.Close() })

	s := NewServer(authSvc, flow, chatMgr, reg, hub, logger, nil)
	return fixture{router: s.Router(), flow: flow, hub: hub}
}

func pngBytes() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doUpload(t *testing.T, h http.Handler, path, token, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(data)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return env.Data
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func register(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name":     "Ada",
		"email":    "Ada@Example.com",
		"password": "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rec.Code, rec.Body.String())
	}
	data := decodeData[struct {
		AccessToken string     `json:"access_token"`
		User        model.User `json:"user"`
	}](t, rec)
	if data.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	if data.User.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", data.User.Email)
	}
	return data.AccessToken
}

func TestAuthFlow(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)

	if rec := doJSON(t, fx.router, http.MethodGet, "/api/v1/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status=%d", rec.Code)
	}
	rec := doJSON(t, fx.router, http.MethodGet, "/api/v1/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status=%d body=%s", rec.Code, rec.Body.String())
	}
	if u := decodeData[model.User](t, rec); u.Name != "Ada" {
		t.Fatalf("unexpected user %+v", u)
	}

	dup := doJSON(t, fx.router, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name": "Other", "email": "ada@example.com", "password": "secret2",
	})
	if dup.Code != http.StatusConflict || errorCode(t, dup) != "DUPLICATE_ACCOUNT" {
		t.Fatalf("duplicate register status=%d body=%s", dup.Code, dup.Body.String())
	}

	bad := doJSON(t, fx.router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "wrong",
	})
	if bad.Code != http.StatusUnauthorized || errorCode(t, bad) != "INVALID_CREDENTIALS" {
		t.Fatalf("bad login status=%d body=%s", bad.Code, bad.Body.String())
	}

	if rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/auth/logout", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, fx.router, http.MethodGet, "/api/v1/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token still valid after logout: %d", rec.Code)
	}
	if rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/auth/resume", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("resume after logout status=%d", rec.Code)
	}

	login := doJSON(t, fx.router, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "ADA@example.com", "password": "secret1",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", login.Code, login.Body.String())
	}
}

func TestQueryTokenAccepted(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)
	rec := doJSON(t, fx.router, http.MethodGet, "/api/v1/workflow?access_token="+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func waitForResult(t *testing.T, h http.Handler, token string) workflow.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := decodeData[workflow.State](t, doJSON(t, h, http.MethodGet, "/api/v1/workflow", token, nil))
		if !st.Loading && (st.Result != nil || st.Error != "") {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("workflow did not finish")
	return workflow.State{}
}

func TestPhotoWorkflowAndDownload(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)

	if rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/workflow/submit", token, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt submit status=%d", rec.Code)
	}

	rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/workflow/mode", token, map[string]any{"mode": "GeneratePhoto"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mode status=%d body=%s", rec.Code, rec.Body.String())
	}
	if st := decodeData[workflow.State](t, rec); st.AspectRatio != model.AspectLandscape {
		t.Fatalf("photo mode aspect = %q", st.AspectRatio)
	}

	bad := doJSON(t, fx.router, http.MethodPatch, "/api/v1/workflow/options", token, map[string]any{"style": "Baroque"})
	if bad.Code != http.StatusBadRequest || errorCode(t, bad) != "INVALID_OPTION" {
		t.Fatalf("bad style status=%d body=%s", bad.Code, bad.Body.String())
	}

	rec = doJSON(t, fx.router, http.MethodPatch, "/api/v1/workflow/options", token, map[string]any{
		"prompt": "A Red Fox!", "style": "Anime",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("options status=%d body=%s", rec.Code, rec.Body.String())
	}

	if rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/workflow/submit", token, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("submit status=%d body=%s", rec.Code, rec.Body.String())
	}
	st := waitForResult(t, fx.router, token)
	if st.Result == nil || st.Result.Kind != model.MediaImage {
		t.Fatalf("unexpected state %+v", st)
	}

	dl := doJSON(t, fx.router, http.MethodGet, "/api/v1/workflow/download", token, nil)
	if dl.Code != http.StatusOK {
		t.Fatalf("download status=%d body=%s", dl.Code, dl.Body.String())
	}
	if cd := dl.Header().Get("Content-Disposition"); cd != `attachment; filename="a-red-fox.png"` {
		t.Fatalf("content-disposition = %q", cd)
	}
	if ct := dl.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type = %q", ct)
	}

	served := doJSON(t, fx.router, http.MethodGet, "/api/v1/media/"+string(st.Result.Ref), "", nil)
	if served.Code != http.StatusOK || !bytes.Equal(served.Body.Bytes(), dl.Body.Bytes()) {
		t.Fatalf("media status=%d", served.Code)
	}
	if missing := doJSON(t, fx.router, http.MethodGet, "/api/v1/media/blob:nope", "", nil); missing.Code != http.StatusNotFound {
		t.Fatalf("unknown media status=%d", missing.Code)
	}
}

func TestStageFile(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)

	rec := doUpload(t, fx.router, "/api/v1/workflow/files", token, "notes.txt", []byte("plain text, not an image"))
	if rec.Code != http.StatusUnsupportedMediaType || errorCode(t, rec) != "FILE_REJECTED" {
		t.Fatalf("text upload status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = doUpload(t, fx.router, "/api/v1/workflow/files", token, "seed.png", pngBytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("png upload status=%d body=%s", rec.Code, rec.Body.String())
	}
	st := decodeData[workflow.State](t, rec)
	if st.File == nil || st.File.MimeType != "image/png" || st.File.Name != "seed.png" {
		t.Fatalf("unexpected staged file %+v", st.File)
	}

	rec = doJSON(t, fx.router, http.MethodDelete, "/api/v1/workflow/files", token, nil)
	if st := decodeData[workflow.State](t, rec); st.File != nil {
		t.Fatalf("file not cleared: %+v", st.File)
	}
}

func TestEditImageRequiresFile(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)
	doJSON(t, fx.router, http.MethodPost, "/api/v1/workflow/mode", token, map[string]any{"mode": "EditImage"})
	doJSON(t, fx.router, http.MethodPatch, "/api/v1/workflow/options", token, map[string]any{"prompt": "make it blue"})

	rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/workflow/submit", token, nil)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, rec) != "MISSING_FILE" {
		t.Fatalf("submit without file status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestChatConversation(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)

	if rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/chat/messages", token, map[string]any{"text": "hi"}); rec.Code != http.StatusConflict {
		t.Fatalf("inactive chat status=%d", rec.Code)
	}
	doJSON(t, fx.router, http.MethodPost, "/api/v1/workflow/mode", token, map[string]any{"mode": "Chat"})

	if rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/chat/messages", token, map[string]any{"text": "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message status=%d", rec.Code)
	}

	rec := doJSON(t, fx.router, http.MethodPost, "/api/v1/chat/messages", token, map[string]any{"text": "ideas for a beach video?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status=%d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeData[struct {
		Active   bool              `json:"active"`
		Messages []renderedMessage `json:"messages"`
	}](t, rec)
	if !body.Active || len(body.Messages) != 3 {
		t.Fatalf("unexpected transcript %+v", body)
	}
	reply := body.Messages[2]
	if text, _ := reply.Message.Text(); text != "**Try** a sunset" {
		t.Fatalf("reply text = %q", text)
	}
	if !strings.Contains(reply.HTML, "<strong>Try</strong>") {
		t.Fatalf("reply html = %q", reply.HTML)
	}

	rec = doJSON(t, fx.router, http.MethodPost, "/api/v1/chat/messages", token, map[string]any{"text": "/generate a lighthouse"})
	body = decodeData[struct {
		Active   bool              `json:"active"`
		Messages []renderedMessage `json:"messages"`
	}](t, rec)
	last := body.Messages[len(body.Messages)-1].Message
	if len(last.Parts) != 2 {
		t.Fatalf("generated reply parts = %+v", last.Parts)
	}
	img, ok := last.Parts[1].(model.ImagePart)
	if !ok {
		t.Fatalf("second part is %T", last.Parts[1])
	}
	if served := doJSON(t, fx.router, http.MethodGet, "/api/v1/media/"+string(img.Ref), "", nil); served.Code != http.StatusOK {
		t.Fatalf("generated image not served: %d", served.Code)
	}
}

func TestWorkflowEventsReplayBacklog(t *testing.T) {
	fx := setupTestRouter(t)
	token := register(t, fx.router)
	doJSON(t, fx.router, http.MethodPatch, "/api/v1/workflow/options", token, map[string]any{"prompt": "waves"})

	srv := httptest.NewServer(fx.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/workflow/events?from_seq=0", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: workflow_state" {
			sawEvent = true
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var evt model.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if evt.Seq != 1 || evt.Topic != events.TopicWorkflow {
				t.Fatalf("unexpected event %+v", evt)
			}
			return
		}
	}
	t.Fatalf("no workflow event received: %v", scanner.Err())
}
