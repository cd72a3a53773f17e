package handler

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/datepoll/internal/model"
    "github.com/iliyamo/datepoll/internal/ranking"
    "github.com/iliyamo/datepoll/internal/service"
    "github.com/iliyamo/datepoll/internal/session"
)

// Top-dates limits for GET requests.
const (
    DefaultTopDates = 3
    MaxTopDates     = 50
)

// MeetingHandler serves the meeting and availability endpoints.
type MeetingHandler struct {
    Meetings *service.MeetingService
    Sessions *session.Issuer
}

// NewMeetingHandler panics if a dependency is missing.
func NewMeetingHandler(meetings *service.MeetingService, sessions *session.Issuer) *MeetingHandler {
    if meetings == nil || sessions == nil {
        panic("nil dependency passed to NewMeetingHandler")
    }
    return &MeetingHandler{Meetings: meetings, Sessions: sessions}
}

type createMeetingRequest struct {
    Title        string   `json:"title"`
    Dates        []string `json:"dates"`
    Participants []string `json:"participants"`
    Locale       string   `json:"locale"`
}

type updateMeetingRequest struct {
    Title        *string   `json:"title"`
    Dates        []string  `json:"dates"`
    Participants *[]string `json:"participants"`
}

type availabilityRequest struct {
    ParticipantName  string              `json:"participantName"`
    AvailableDates   []string            `json:"availableDates"`
    UnavailableDates *[]string           `json:"unavailableDates"`
    StatusUpdate     *model.StatusUpdate `json:"statusUpdate"`
    IsLocked         *bool               `json:"isLocked"`
    Timestamp        *time.Time          `json:"timestamp"`
}

// meetingView is the GET /api/meetings/:id payload.
type meetingView struct {
    Meeting        *model.Meeting       `json:"meeting"`
    Availabilities []model.Availability `json:"availabilities"`
    TopDates       []ranking.RankedDate `json:"topDates"`
}

// Create handles POST /api/meetings.
func (h *MeetingHandler) Create(c echo.Context) error {
    var req createMeetingRequest
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid JSON body")
    }
    m, err := h.Meetings.CreateMeeting(c.Request().Context(), service.CreateMeetingInput{
        Title:        req.Title,
        Dates:        req.Dates,
        Participants: req.Participants,
        Locale:       req.Locale,
    })
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"success": true, "meetingId": m.ID, "meeting": m})
}

// Get handles GET /api/meetings/:id.
func (h *MeetingHandler) Get(c echo.Context) error {
    m, avs, err := h.Meetings.GetMeetingWithAvailabilities(c.Request().Context(), c.Param("id"))
    if err != nil {
        return respondError(c, err)
    }
    top := ranking.RankDates(m.Dates, avs, DefaultTopDates)
    if avs == nil {
        avs = []model.Availability{}
    }
    return c.JSON(http.StatusOK, meetingView{Meeting: m, Availabilities: avs, TopDates: top})
}

// Update handles PUT and PATCH /api/meetings/:id.
func (h *MeetingHandler) Update(c echo.Context) error {
    var req updateMeetingRequest
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid JSON body")
    }
    m, err := h.Meetings.UpdateMeeting(c.Request().Context(), c.Param("id"), service.UpdateMeetingInput{
        Title:        req.Title,
        Dates:        req.Dates,
        Participants: req.Participants,
    })
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "meeting": m})
}

// UpsertAvailability handles POST /api/meetings/:id/availability.  The
// response carries a session token naming the participant, which clients
// send back as a Bearer token to edit a locked record.
func (h *MeetingHandler) UpsertAvailability(c echo.Context) error {
    var req availabilityRequest
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid JSON body")
    }
    meetingID := c.Param("id")
    a, err := h.Meetings.UpsertAvailability(c.Request().Context(), meetingID, req.ParticipantName, model.AvailabilityUpdate{
        AvailableDates:   req.AvailableDates,
        UnavailableDates: req.UnavailableDates,
        StatusUpdate:     req.StatusUpdate,
        IsLocked:         req.IsLocked,
        Timestamp:        req.Timestamp,
    })
    if err != nil {
        return respondError(c, err)
    }
    token, exp, err := h.Sessions.Issue(session.Identity{MeetingID: meetingID, Participant: a.ParticipantName})
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "success":          true,
        "availability":     a,
        "sessionToken":     token,
        "sessionExpiresAt": exp,
    })
}

// TopDates handles GET /api/meetings/:id/top-dates?limit=N.
func (h *MeetingHandler) TopDates(c echo.Context) error {
    limit := DefaultTopDates
    if raw := c.QueryParam("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n < 1 || n > MaxTopDates {
            return badRequest(c, "limit must be between 1 and "+strconv.Itoa(MaxTopDates))
        }
        limit = n
    }
    m, avs, err := h.Meetings.GetMeetingWithAvailabilities(c.Request().Context(), c.Param("id"))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"topDates": ranking.RankDates(m.Dates, avs, limit)})
}
