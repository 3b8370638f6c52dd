package domain

import "errors"

var (
	ErrInvalidOCRType = errors.New("ocr_type must be \"ocr\" or \"format\"")
	ErrInvalidColor   = errors.New("color must be one of red, green, blue")
	ErrNoImage        = errors.New("no image provided")

	// The box messages are shown verbatim in the form UI.
	ErrBoxCount  = errors.New("Box格式错误: 需要4个数字 (x1,y1,x2,y2)")
	ErrBoxNumber = errors.New("Box格式错误: 请输入有效的数字")
)
