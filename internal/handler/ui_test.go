package handler

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"html"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gulubao/GOT-OCR2.0/internal/config"
	"github.com/gulubao/GOT-OCR2.0/internal/domain"
	"github.com/gulubao/GOT-OCR2.0/internal/runner"
	"github.com/gulubao/GOT-OCR2.0/internal/service"
	"github.com/gulubao/GOT-OCR2.0/web"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newUIRouter(t *testing.T, svc service.OCRService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tmpl, err := web.Templates()
	if err != nil {
		t.Fatalf("Templates() error = %v", err)
	}
	cfg := &config.AppConfig{
		MaxUploadSize:  1 << 20,
		MaxRequestSize: 2 << 20,
		MaxImagePixels: 1 << 20,
		AllowedFormats: []string{".png", ".jpg"},
	}
	h := NewHandler(svc, nil, cfg, zap.NewNop())
	r := gin.New()
	r.Use(h.LimitBody())
	r.SetHTMLTemplate(tmpl)
	r.GET("/", h.GetUI)
	r.POST("/", h.SubmitUI)
	return r
}

func submit(t *testing.T, r http.Handler, fields map[string]string, files ...upload) string {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	return html.UnescapeString(rec.Body.String())
}

func TestGetUI(t *testing.T) {
	r := newUIRouter(t, &fakeService{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`name="image"`, `name="ocr_type"`, `name="color"`, `name="box"`, `name="render"`, "GOT-OCR 2.0"} {
		if !strings.Contains(body, want) {
			t.Fatalf("form is missing %s", want)
		}
	}
}

func TestSubmitUINoImage(t *testing.T) {
	svc := &fakeService{}
	body := submit(t, newUIRouter(t, svc), map[string]string{"box": "1,2,3,4"})
	if !strings.Contains(body, "请上传图片") {
		t.Fatal("expected upload prompt")
	}
	if svc.recorded != 0 {
		t.Fatal("service must not be called")
	}
}

func TestSubmitUIBadBox(t *testing.T) {
	cases := map[string]string{
		"100,100,500": "Box格式错误: 需要4个数字 (x1,y1,x2,y2)",
		"a,b,c,d":     "Box格式错误: 请输入有效的数字",
	}
	for box, want := range cases {
		svc := &fakeService{}
		body := submit(t, newUIRouter(t, svc),
			map[string]string{"box": box},
			upload{"image", "photo.png", testPNG(t)})
		if !strings.Contains(body, want) {
			t.Fatalf("box %q: expected %q in page", box, want)
		}
		if svc.recorded != 0 {
			t.Fatalf("box %q: service must not be called", box)
		}
	}
}

func TestSubmitUISuccess(t *testing.T) {
	svc := &fakeService{resp: domain.Success("识别文本 recognized")}
	body := submit(t, newUIRouter(t, svc), map[string]string{
		"ocr_type": "format",
		"color":    "none",
		"box":      " 100, 100,500,500",
		"render":   "true",
	}, upload{"image", "photo.png", testPNG(t)})

	if !strings.Contains(body, "识别文本 recognized") {
		t.Fatal("result missing from page")
	}

	req := svc.req
	if req.Image.Name != "temp.png" {
		t.Fatalf("image name = %q", req.Image.Name)
	}
	if _, err := png.Decode(bytes.NewReader(req.Image.Data)); err != nil {
		t.Fatalf("forwarded image is not png: %v", err)
	}
	if req.Box != "[100,100,500,500]" {
		t.Fatalf("box = %q", req.Box)
	}
	if req.Color != domain.ColorNone || req.Type != domain.OCRTypeFormatted || !req.Render {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestSubmitUIFailures(t *testing.T) {
	cases := []struct {
		err     error
		want    string
		notWant string
	}{
		{service.ErrRecognitionFailed, "错误: boom", "发生错误"},
		{runner.ErrTimeout, "发生错误: boom", ""},
	}
	for _, tc := range cases {
		svc := &fakeService{resp: domain.Failure("boom"), err: tc.err}
		body := submit(t, newUIRouter(t, svc),
			map[string]string{"color": "blue"},
			upload{"image", "photo.png", testPNG(t)})
		if !strings.Contains(body, tc.want) {
			t.Fatalf("%v: expected %q in page", tc.err, tc.want)
		}
		if tc.notWant != "" && strings.Contains(body, tc.notWant) {
			t.Fatalf("%v: unexpected %q in page", tc.err, tc.notWant)
		}
		if svc.req.Color != domain.ColorBlue {
			t.Fatalf("color = %q", svc.req.Color)
		}
	}
}

func TestSubmitUIUndecodableImage(t *testing.T) {
	svc := &fakeService{}
	body := submit(t, newUIRouter(t, svc), nil, upload{"image", "notes.png", []byte("plain text")})
	if !strings.Contains(body, "发生错误: ") {
		t.Fatal("expected error message")
	}
	if svc.recorded != 0 {
		t.Fatal("service must not be called")
	}
}

func TestSubmitUIRejectsUploads(t *testing.T) {
	// A 1x1 png whose header claims 40000x40000 pixels.
	bomb := testPNG(t)
	binary.BigEndian.PutUint32(bomb[16:20], 40000)
	binary.BigEndian.PutUint32(bomb[20:24], 40000)
	binary.BigEndian.PutUint32(bomb[29:33], crc32.ChecksumIEEE(bomb[12:29]))

	cases := map[string]struct {
		file upload
		want string
	}{
		"huge dimensions": {upload{"image", "bomb.png", bomb}, "image dimensions too large"},
		"bad extension":   {upload{"image", "tool.exe", testPNG(t)}, "invalid file format"},
		"too large":       {upload{"image", "big.png", bytes.Repeat([]byte("x"), 1<<20+1)}, "file too large"},
		"body too large":  {upload{"image", "huge.png", bytes.Repeat([]byte("x"), 3<<20)}, "file too large"},
		"empty":           {upload{"image", "empty.png", nil}, "请上传图片"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeService{}
			body := submit(t, newUIRouter(t, svc), nil, tc.file)
			if !strings.Contains(body, tc.want) {
				t.Fatalf("expected %q in page", tc.want)
			}
			if svc.recorded != 0 {
				t.Fatal("service must not be called")
			}
		})
	}
}
