package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gulubao/GOT-OCR2.0/internal/domain"
	"github.com/gulubao/GOT-OCR2.0/internal/service"
)

const (
	msgNoImage      = "请上传图片"
	msgFailedPrefix = "错误: "
	msgErrorPrefix  = "发生错误: "

	uiImageName = "temp.png"
	colorNone   = "none"
)

type uiPage struct {
	OCRTypes []string
	Colors   []string
	OCRType  string
	Color    string
	Box      string
	Render   bool
	Result   string
}

func newUIPage() uiPage {
	return uiPage{
		OCRTypes: []string{string(domain.OCRTypePlain), string(domain.OCRTypeFormatted)},
		Colors:   []string{colorNone, string(domain.ColorRed), string(domain.ColorGreen), string(domain.ColorBlue)},
		OCRType:  string(domain.OCRTypePlain),
		Color:    colorNone,
	}
}

func (h *Handler) GetUI(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", newUIPage())
}

// SubmitUI reports every outcome, bad input included, in the result box.
func (h *Handler) SubmitUI(c *gin.Context) {
	page := newUIPage()
	page.OCRType = c.DefaultPostForm("ocr_type", page.OCRType)
	page.Color = c.DefaultPostForm("color", page.Color)
	page.Box = c.PostForm("box")
	page.Render, _ = parseFormBool(c.PostForm("render"))

	page.Result = h.runForm(c, page)

	c.HTML(http.StatusOK, "index.html", page)
}

func (h *Handler) runForm(c *gin.Context, page uiPage) string {
	file, err := c.FormFile("image")
	if err != nil {
		if err = uploadError(err, "image"); errors.Is(err, errFileTooLarge) {
			return msgErrorPrefix + err.Error()
		}
		return msgNoImage
	}

	box, err := domain.ParseBox(page.Box)
	if err != nil {
		return err.Error()
	}

	ocrType, err := domain.ParseOCRType(page.OCRType)
	if err != nil {
		return msgErrorPrefix + err.Error()
	}

	colorValue := page.Color
	if colorValue == colorNone {
		colorValue = ""
	}
	color, err := domain.ParseColor(colorValue)
	if err != nil {
		return msgErrorPrefix + err.Error()
	}

	img, err := h.readUpload(file)
	if errors.Is(err, domain.ErrNoImage) {
		return msgNoImage
	}
	if err != nil {
		return msgErrorPrefix + err.Error()
	}

	pngData, err := h.images.ToPNG(img.Data)
	if err != nil {
		h.log.Info("Rejected form upload",
			zap.String("request_id", requestID(c)),
			zap.String("filename", file.Filename),
			zap.Error(err))
		return msgErrorPrefix + err.Error()
	}

	resp, err := h.service.Recognize(c.Request.Context(), domain.OCRRequest{
		ID:     requestID(c),
		Image:  domain.Image{Name: uiImageName, Data: pngData},
		Type:   ocrType,
		Box:    box,
		Color:  color,
		Render: page.Render,
	})

	switch {
	case resp.Success:
		return resp.Result
	case errors.Is(err, service.ErrRecognitionFailed):
		return msgFailedPrefix + errorText(resp)
	default:
		return msgErrorPrefix + errorText(resp)
	}
}

func errorText(resp domain.OCRResponse) string {
	if resp.Error == nil {
		return ""
	}
	return *resp.Error
}
