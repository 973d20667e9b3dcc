package model

import (
	"mime/multipart"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// UploadRequest PDF上传请求
type UploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"` // 上传的文件
}

// AskRequest 提问请求
type AskRequest struct {
	Question string `json:"question" binding:"required,notblank"` // 问题内容
}

// uploadName 单独校验文件名，类型不对时返回400而不是422
type uploadName struct {
	Name string `validate:"required,pdffile"`
}

var (
	registerOnce sync.Once
	nameValidate = newNameValidator()
)

func newNameValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pdffile", pdfFile)
	return v
}

// RegisterValidators 向gin的校验引擎注册自定义标签
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", notBlank)
			_ = v.RegisterValidation("pdffile", pdfFile)
		}
	})
}

// ValidateUploadName 校验上传的文件名是否以.pdf结尾
func ValidateUploadName(name string) error {
	return nameValidate.Struct(uploadName{Name: name})
}

// pdfFile 文件名必须以小写的.pdf结尾
func pdfFile(fl validator.FieldLevel) bool {
	return strings.HasSuffix(fl.Field().String(), ".pdf")
}

// notBlank 字符串去掉空白后不能为空
func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
