package httpapi

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/cadence/internal/calendar"
	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/ics"
)

const (
	headerRole  = "X-Cadence-Role"
	headerActor = "X-Cadence-Actor"
)

func (s *Server) createEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed event", err)
		return
	}
	draft, err := req.Draft(s.loc)
	if err != nil {
		s.fail(c, err)
		return
	}

	v, err := s.svc.CreateSeries(c.Request.Context(), draft)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (s *Server) getEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := s.svc.GetEvent(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) editEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	scope, err := engine.ParseEditScope(c.Query("scope"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed patch", err)
		return
	}
	patch, err := req.Patch(s.loc)
	if err != nil {
		s.fail(c, err)
		return
	}

	v, err := retryConflict(func() (calendar.View, error) {
		return s.svc.EditEvent(c.Request.Context(), id, scope, patch)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) deleteEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	scope, err := engine.ParseDeleteScope(c.Query("scope"))
	if err != nil {
		s.fail(c, err)
		return
	}

	res, err := retryConflict(func() (engine.DeleteResult, error) {
		return s.svc.DeleteEvent(c.Request.Context(), id, scope)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listEvents(c *gin.Context) {
	q, err := s.query(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	views, err := s.svc.ListEvents(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if views == nil {
		views = []calendar.View{}
	}
	c.JSON(http.StatusOK, views)
}

// query reads the caller's identity and the list filters.
func (s *Server) query(c *gin.Context) (engine.Query, error) {
	var q engine.Query

	role := c.GetHeader(headerRole)
	if role == "" {
		role = c.Query("role")
	}
	r, err := engine.ParseRole(role)
	if err != nil {
		return q, err
	}
	q.Role = r

	actor := c.GetHeader(headerActor)
	if actor == "" {
		actor = c.Query("actor_id")
	}
	if q.ActorID, err = optionalInt("actor_id", actor); err != nil {
		return q, err
	}
	if q.ResourceID, err = optionalInt("resource_id", c.Query("resource_id")); err != nil {
		return q, err
	}
	if q.LocationID, err = optionalInt("location_id", c.Query("location_id")); err != nil {
		return q, err
	}
	if v := c.Query("start"); v != "" {
		if q.Start, err = instant("start", v, s.loc); err != nil {
			return q, err
		}
	}
	if v := c.Query("end"); v != "" {
		if q.End, err = instant("end", v, s.loc); err != nil {
			return q, err
		}
	}
	return q, nil
}

func (s *Server) promote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := retryConflict(func() (calendar.View, error) {
		return s.svc.Promote(c.Request.Context(), id)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) reconcile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed rule", err)
		return
	}
	res, err := retryConflict(func() (engine.ReconcileResult, error) {
		return s.svc.ReconcileRule(c.Request.Context(), id, req.Rule)
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) seriesStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	st, err := s.svc.SeriesStatus(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st.View(s.loc))
}

func (s *Server) exportSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	series, err := s.svc.Series(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := ics.Encode(&buf, ics.Series(series, s.loc, s.now())); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+ics.UID(series.Root.ID)+`.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

func (s *Server) previewRule(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed preview request", err)
		return
	}
	start, err := instant("start", req.Start, s.loc)
	if err != nil {
		s.fail(c, err)
		return
	}
	n := req.Count
	if n == 0 {
		n = DefaultPreviewCount
	}
	if n > MaxPreviewCount {
		n = MaxPreviewCount
	}

	p, err := s.svc.PreviewRule(req.Rule, start, n)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// pathID reads the :id parameter, rejecting the request if it is not a
// positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func optionalInt(field, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, engine.NewValidationError(field, "must be a non-negative integer")
	}
	return n, nil
}
