package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iemipdd12/reports_backend/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func bindReportQuery(c *gin.Context) (models.ReportFilter, models.Page, bool) {
	var (
		filter models.ReportFilter
		page   models.Page
	)
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return filter, page, false
	}
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return filter, page, false
	}
	return filter, page, true
}

func (s *server) createReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewReport
		if !bindJSON(c, &input) {
			return
		}
		report, err := models.CreateReport(c.Request.Context(), &input, s.settings.PhoneRegion)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, report)
	}
}

func (s *server) listReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, page, ok := bindReportQuery(c)
		if !ok {
			return
		}
		reports, err := models.GetReports(c.Request.Context(), filter, page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

func (s *server) getReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		report, err := models.GetReport(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func (s *server) updateReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input models.ReportUpdate
		if !bindJSON(c, &input) {
			return
		}
		report, err := models.UpdateReport(c.Request.Context(), id, &input, s.settings.PhoneRegion)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func (s *server) deleteReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		report, attachments, err := models.DeleteReport(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		s.removeAttachmentObjects(c.Request.Context(), attachments)
		c.JSON(http.StatusOK, report)
	}
}

func (s *server) exportReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, _, ok := bindReportQuery(c)
		if !ok {
			return
		}
		f, err := models.ExportReports(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			respondError(c, err)
			return
		}
		fileName := fmt.Sprintf("reports_%s.xlsx", time.Now().UTC().Format("20060102"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	}
}
