package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iemipdd12/reports_backend/models"
)

func (s *server) createRecurringMeetingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewRecurringMeeting
		if !bindJSON(c, &input) {
			return
		}
		meeting, err := models.CreateRecurringMeeting(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, meeting)
	}
}

func (s *server) listRecurringMeetingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var page models.Page
		if err := c.ShouldBindQuery(&page); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		meetings, err := models.GetRecurringMeetings(c.Request.Context(), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, meetings)
	}
}

func (s *server) getRecurringMeetingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		meeting, err := models.GetRecurringMeeting(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, meeting)
	}
}

func (s *server) updateRecurringMeetingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.RecurringMeetingUpdate
		if !bindJSON(c, &input) {
			return
		}
		meeting, err := models.UpdateRecurringMeeting(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, meeting)
	}
}

func (s *server) deleteRecurringMeetingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		meeting, attachments, err := models.DeleteRecurringMeeting(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		s.removeAttachmentObjects(c.Request.Context(), attachments)
		c.JSON(http.StatusOK, meeting)
	}
}

func (s *server) recurringMeetingReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		reports, err := models.GetRecurringMeetingReports(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}
