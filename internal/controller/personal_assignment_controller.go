package controller

import (
	"recall_edu_backend/internal/service"
	"recall_edu_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PersonalAssignmentController struct {
	PersonalAssignmentService *service.PersonalAssignmentService
}

func NewPersonalAssignmentController(personalAssignmentService *service.PersonalAssignmentService) *PersonalAssignmentController {
	return &PersonalAssignmentController{PersonalAssignmentService: personalAssignmentService}
}

func parseID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "无效的ID")
		return 0, false
	}
	return uint(id), true
}

// @Summary 获取下一题
// @Description 按题号与追问深度顺序返回下一道待答题，全部完成时 completed=true
// @Tags 个人作业
// @Produce json
// @Security BearerAuth
// @Param id path int true "个人作业ID"
// @Success 200 {object} util.Response{data=model.NextQuestionView}
// @Failure 404 {object} util.Response
// @Router /personal-assignments/{id}/next [get]
func (c *PersonalAssignmentController) GetNextQuestion(ctx *gin.Context) {
	user := util.ClaimsFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	view, err := c.PersonalAssignmentService.GetNextQuestion(ctx.Request.Context(), id, user)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 获取个人作业状态
// @Tags 个人作业
// @Produce json
// @Security BearerAuth
// @Param id path int true "个人作业ID"
// @Success 200 {object} util.Response{data=model.PersonalAssignmentView}
// @Failure 404 {object} util.Response
// @Router /personal-assignments/{id} [get]
func (c *PersonalAssignmentController) GetStatus(ctx *gin.Context) {
	user := util.ClaimsFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	view, err := c.PersonalAssignmentService.GetStatus(ctx.Request.Context(), id, user)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 完成个人作业
// @Description 不论当前追问进度，直接将作业标记为已提交
// @Tags 个人作业
// @Produce json
// @Security BearerAuth
// @Param id path int true "个人作业ID"
// @Success 200 {object} util.Response{data=model.PersonalAssignmentView}
// @Failure 404 {object} util.Response
// @Router /personal-assignments/{id}/complete [post]
func (c *PersonalAssignmentController) Complete(ctx *gin.Context) {
	user := util.ClaimsFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	view, err := c.PersonalAssignmentService.Complete(ctx.Request.Context(), id, user)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
