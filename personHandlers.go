package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iemipdd12/reports_backend/models"
)

func (s *server) createPersonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPerson
		if !bindJSON(c, &input) {
			return
		}
		person, err := models.CreatePerson(c.Request.Context(), &input, s.settings.PhoneRegion)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, person)
	}
}

func (s *server) listPersonsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var page models.Page
		if err := c.ShouldBindQuery(&page); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		persons, err := models.GetPersons(c.Request.Context(), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, persons)
	}
}

func (s *server) getPersonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		person, err := models.GetPerson(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, person)
	}
}

func (s *server) updatePersonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.PersonUpdate
		if !bindJSON(c, &input) {
			return
		}
		person, err := models.UpdatePerson(c.Request.Context(), id, &input, s.settings.PhoneRegion)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, person)
	}
}

func (s *server) deletePersonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		person, attachments, err := models.DeletePerson(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		s.removeAttachmentObjects(c.Request.Context(), attachments)
		c.JSON(http.StatusOK, person)
	}
}

func (s *server) personRecurringMeetingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		meetings, err := models.GetRecurringMeetingsByLeader(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, meetings)
	}
}
