package controller

import (
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/service"
	"recall_edu_backend/internal/util"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type SubmissionController struct {
	SubmissionService *service.SubmissionService
	TempDir           string
	MaxUploadBytes    int64
}

func NewSubmissionController(submissionService *service.SubmissionService, tempDir string, maxUploadMB int64) *SubmissionController {
	return &SubmissionController{
		SubmissionService: submissionService,
		TempDir:           tempDir,
		MaxUploadBytes:    maxUploadMB << 20,
	}
}

// SubmitAnswerRequest 文本作答
type SubmitAnswerRequest struct {
	Text string `json:"text" form:"text"`
}

// @Summary 提交作答
// @Description 上传录音(audio)或文本(text)作答，返回判题结果、分类、路由计划与追问题
// @Tags 作答
// @Accept multipart/form-data,json
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Param audio formData file false "作答录音"
// @Param text formData string false "文本作答"
// @Success 200 {object} util.Response{data=service.SubmissionResult}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 502 {object} util.Response
// @Router /questions/{id}/answers [post]
func (c *SubmissionController) SubmitAnswer(ctx *gin.Context) {
	user := util.ClaimsFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	questionID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		util.BadRequest(ctx, "无效的题目ID")
		return
	}

	var input service.SubmissionInput
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.MaxUploadBytes)
		input.Text = ctx.PostForm("text")

		file, err := ctx.FormFile("audio")
		switch {
		case err == nil:
			path, mimeType, err := c.saveAudio(ctx, file)
			if err != nil {
				util.BadRequest(ctx, err.Error())
				return
			}
			defer os.Remove(path)
			input.AudioPath = path
			input.AudioFilename = file.Filename
			input.MimeType = mimeType
		case err == http.ErrMissingFile:
		default:
			util.BadRequest(ctx, "读取上传文件失败: "+err.Error())
			return
		}
	} else {
		var req SubmitAnswerRequest
		if err := ctx.ShouldBind(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
		input.Text = req.Text
	}

	result, err := c.SubmissionService.Submit(ctx.Request.Context(), user.UserID, uint(questionID), input)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// saveAudio 校验扩展名与文件头后保存到临时目录，调用方负责删除
func (c *SubmissionController) saveAudio(ctx *gin.Context, file *multipart.FileHeader) (string, string, error) {
	if !util.HasAllowedExtension(file.Filename, util.AllowedAudioExtensions) {
		return "", "", util.ErrUnsupportedAudio
	}

	src, err := file.Open()
	if err != nil {
		return "", "", err
	}
	mimeType, err := util.ValidateMimeType(src, util.AllowedAudioMimeTypes)
	src.Close()
	// flac/aac 等裸流无法通过文件头识别，扩展名合法时放行
	if err != nil && mimeType != util.MimeOctetStream {
		return "", "", util.ErrUnsupportedAudio
	}
	if contentType := file.Header.Get("Content-Type"); contentType != "" && util.IsAudio(contentType) {
		mimeType = contentType
	}

	dst := filepath.Join(c.TempDir, model.GenerateUUID()+strings.ToLower(filepath.Ext(file.Filename)))
	if err := ctx.SaveUploadedFile(file, dst); err != nil {
		return "", "", err
	}
	return dst, mimeType, nil
}
