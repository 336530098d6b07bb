// Package lms is the REST client of the external learning platform.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	apiKeyHeader = "X-API-Key"

	programsPath = "/api/v1/programs"
	intakesPath  = "/api/v1/intakes"
	studentsPath = "/api/v1/students"
	ssoPath      = "/api/v1/sso/token"
)

type Client struct {
	http   *resty.Client
	logger core.Logger
}

var _ core.LMSClient = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	rc := resty.New().
		SetBaseURL(conf.LMS.BaseURL).
		SetTimeout(conf.LMS.Timeout).
		SetHeader(apiKeyHeader, conf.LMS.APIKey).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	return &Client{http: rc, logger: logger}
}

// apiError is the error body of the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e apiError) String() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// unwrap returns the "data" member of enveloped payloads, or the payload itself.
func unwrap(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return trimmed
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	res, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	if res.IsError() {
		return errors.Errorf("GET %s: %s", path, statusMessage(res))
	}
	return errors.Wrapf(json.Unmarshal(unwrap(res.Body()), dest), "decoding GET %s", path)
}

func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	res, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	if res.IsError() {
		return errors.New(statusMessage(res))
	}
	return errors.Wrapf(json.Unmarshal(unwrap(res.Body()), dest), "decoding POST %s", path)
}

func statusMessage(res *resty.Response) string {
	var ae apiError
	if err := json.Unmarshal(res.Body(), &ae); err == nil && ae.String() != "" {
		return ae.String()
	}
	return fmt.Sprintf("LMS responded %d %s", res.StatusCode(), http.StatusText(res.StatusCode()))
}

func (c *Client) logFailure(op string, err error) {
	c.logger.Error(fmt.Sprintf("lms.%s: %v", op, err), err)
}

func (c *Client) Programs(ctx context.Context) []core.LMSProgram {
	var progs []core.LMSProgram
	if err := c.get(ctx, programsPath, &progs); err != nil {
		c.logFailure("Programs", err)
		return []core.LMSProgram{}
	}
	return progs
}

func (c *Client) Program(ctx context.Context, id string) *core.LMSProgram {
	var prog core.LMSProgram
	if err := c.get(ctx, programsPath+"/"+id, &prog); err != nil {
		c.logFailure("Program", err)
		return nil
	}
	return &prog
}

func (c *Client) Intakes(ctx context.Context) []core.LMSIntake {
	var intakes []core.LMSIntake
	if err := c.get(ctx, intakesPath, &intakes); err != nil {
		c.logFailure("Intakes", err)
		return []core.LMSIntake{}
	}
	return intakes
}

func (c *Client) Intake(ctx context.Context, id string) *core.LMSIntake {
	var intake core.LMSIntake
	if err := c.get(ctx, intakesPath+"/"+id, &intake); err != nil {
		c.logFailure("Intake", err)
		return nil
	}
	return &intake
}

func (c *Client) CreateStudent(ctx context.Context, ns core.LMSNewStudent) core.LMSStudentResult {
	var res core.LMSStudentResult
	if err := c.post(ctx, studentsPath, ns, &res); err != nil {
		c.logFailure("CreateStudent", err)
		return core.LMSStudentResult{Success: false, Error: errors.Cause(err).Error()}
	}
	res.Success = true
	res.Error = ""
	return res
}

func (c *Client) IssueSSOToken(ctx context.Context, req core.LMSSSORequest) core.LMSSSOResult {
	var res core.LMSSSOResult
	if err := c.post(ctx, ssoPath, req, &res); err != nil {
		c.logFailure("IssueSSOToken", err)
		return core.LMSSSOResult{Success: false, Error: errors.Cause(err).Error()}
	}
	res.Success = true
	res.Error = ""
	return res
}
