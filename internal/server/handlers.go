package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/llmutil"
	"github.com/xkilldash9x/autonote/internal/task"
)

const healthStatusOK = "ok"

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    healthStatusOK,
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Version:   s.version,
	})
}

// pushEnvelope is the body of a Pub/Sub push delivery.
type pushEnvelope struct {
	Message *struct {
		Data       string            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func (s *Server) handlePubSub(c echo.Context) error {
	var env pushEnvelope
	if err := c.Bind(&env); err != nil || env.Message == nil || env.Message.Data == "" {
		s.logger.Warn("Invalid Pub/Sub message received")
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid message format"})
	}

	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		s.logger.Warn("Pub/Sub message data is not base64", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid message format"})
	}
	var req schemas.TaskRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Warn("Pub/Sub message data is not a task", zap.String("data", llmutil.Truncate(string(raw), 200)), zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid message format"})
	}
	if req.Task == "" {
		req.Task = schemas.TaskDailyPost
	}
	s.logger.Info("Received Pub/Sub message",
		zap.String("message_id", env.Message.MessageID),
		zap.String("subscription", env.Subscription),
		zap.String("task", string(req.Task)))

	if _, err := s.runner.Execute(c.Request().Context(), req); err != nil {
		return s.fail(c, err, "Task execution failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "message": "Task executed"})
}

// executeRequest accepts the options either flat beside the task name or nested under
// "options".
type executeRequest struct {
	Task schemas.TaskType `json:"task"`
	schemas.TaskOptions
	Options *schemas.TaskOptions `json:"options"`
}

func (r executeRequest) taskRequest() schemas.TaskRequest {
	req := schemas.TaskRequest{Task: r.Task, Options: r.TaskOptions}
	if r.Options != nil {
		req.Options = *r.Options
	}
	if req.Task == "" {
		req.Task = schemas.TaskDailyPost
	}
	return req
}

func validateOptions(opts schemas.TaskOptions) error {
	if opts.ProductCount < 0 {
		return fmt.Errorf("%w: productCount must not be negative", ErrInvalidPayload)
	}
	if opts.IsPaid && opts.Price <= 0 {
		return fmt.Errorf("%w: paid articles need a positive price", ErrInvalidPayload)
	}
	return nil
}

func (s *Server) handleExecute(c echo.Context) error {
	var body executeRequest
	if err := c.Bind(&body); err != nil {
		return s.fail(c, fmt.Errorf("%w: %v", ErrInvalidPayload, err), "Execution failed")
	}
	req := body.taskRequest()
	if err := validateOptions(req.Options); err != nil {
		return s.fail(c, err, "Execution failed")
	}

	result, err := s.runner.Execute(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err, "Execution failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "success", "result": result})
}

type generateRequest struct {
	ProductID string `json:"productId"`
	Theme     string `json:"theme"`
}

type productSummary struct {
	ASIN  string `json:"asin"`
	Title string `json:"title"`
	Price string `json:"price"`
}

func (s *Server) handleGenerateArticle(c echo.Context) error {
	var body generateRequest
	if err := c.Bind(&body); err != nil {
		return s.fail(c, fmt.Errorf("%w: %v", ErrInvalidPayload, err), "Article generation failed")
	}

	article, product, err := s.runner.GenerateArticle(c.Request().Context(), body.ProductID, body.Theme)
	if err != nil {
		return s.fail(c, err, "Article generation failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "success",
		"article": article,
		"product": productSummary{ASIN: product.ASIN, Title: product.Title, Price: product.Price},
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = task.DefaultHistoryLimit
	}

	history, err := s.runner.History(c.Request().Context(), limit)
	if err != nil {
		return s.fail(c, err, "Failed to fetch history")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "success",
		"articles": history.Articles,
		"runs":     history.Runs,
	})
}

// fail writes an error response. Details are only exposed in development.
func (s *Server) fail(c echo.Context, err error, summary string) error {
	status := mapTaskError(err)
	body := errorBody{Error: summary}
	switch {
	case status < http.StatusInternalServerError:
		body.Message = err.Error()
	case s.app.IsDevelopment():
		body.Message = err.Error()
	default:
		body.Message = "Something went wrong"
	}
	s.logger.Error(summary, zap.Int("status", status), zap.Error(err))
	return c.JSON(status, body)
}
