package tensorart

import "strings"

// JobStatus is the status string reported by the service. Only SUCCESS and
// FAILED are terminal; everything else keeps a job pending.
type JobStatus string

const (
	StatusSuccess JobStatus = "SUCCESS"
	StatusFailed  JobStatus = "FAILED"
)

// Terminal reports whether no further status transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ResourceHandle identifies an uploaded binary that later jobs can reference.
type ResourceHandle struct {
	ResourceID string
}

// FieldAttr overrides a single field of a template node.
type FieldAttr struct {
	NodeID     string `json:"nodeId"`
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

// JobSpec is the payload of a job submission. It is implemented by
// TemplateJob and StagedJob only.
type JobSpec interface {
	endpoint() string
	payload(requestID string) any
	Kind() string
}

// TemplateParams are the optional submission parameters of a template job.
type TemplateParams struct {
	Async       bool           `json:"async"`
	Priority    string         `json:"priority,omitempty"`
	ExtraParams map[string]any `json:"extraParams"`
}

// TemplateJob runs a server-stored workflow template with per-node overrides.
// Fields keep their order on the wire.
type TemplateJob struct {
	TemplateID string
	Fields     []FieldAttr
	Params     *TemplateParams
}

func (TemplateJob) Kind() string { return "template" }

func (TemplateJob) endpoint() string { return "/v1/jobs/workflow/template" }

type templateFields struct {
	FieldAttrs []FieldAttr `json:"fieldAttrs"`
}

type templateRequest struct {
	RequestID  string          `json:"request_id"`
	TemplateID string          `json:"templateId"`
	Params     *TemplateParams `json:"params,omitempty"`
	Fields     templateFields  `json:"fields"`
}

func (j TemplateJob) payload(requestID string) any {
	fields := j.Fields
	if fields == nil {
		fields = []FieldAttr{}
	}
	params := j.Params
	if params != nil && params.ExtraParams == nil {
		cp := *params
		cp.ExtraParams = map[string]any{}
		params = &cp
	}
	return templateRequest{
		RequestID:  requestID,
		TemplateID: strings.TrimSpace(j.TemplateID),
		Params:     params,
		Fields:     templateFields{FieldAttrs: fields},
	}
}

// StageType names a processing stage of an inline pipeline.
type StageType string

const (
	StageInputInitialize StageType = "INPUT_INITIALIZE"
	StageDiffusion       StageType = "DIFFUSION"
)

// Stage is one step of a staged pipeline. Exactly one of the parameter
// pointers matching Type is expected to be set.
type Stage struct {
	Type            StageType        `json:"type"`
	InputInitialize *InputInitialize `json:"inputInitialize,omitempty"`
	Diffusion       *Diffusion       `json:"diffusion,omitempty"`
}

type InputInitialize struct {
	Seed  int64 `json:"seed"`
	Count int   `json:"count"`
}

type Prompt struct {
	Text string `json:"text"`
}

type Diffusion struct {
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Prompts  []Prompt `json:"prompts"`
	Sampler  string   `json:"sampler,omitempty"`
	SDVae    string   `json:"sdVae,omitempty"`
	Steps    int      `json:"steps"`
	SDModel  string   `json:"sd_model"`
	ClipSkip int      `json:"clip_skip,omitempty"`
	CFGScale float64  `json:"cfg_scale"`
}

// StagedJob is an inline pipeline description submitted instead of a template.
type StagedJob struct {
	Stages []Stage
}

func (StagedJob) Kind() string { return "staged" }

func (StagedJob) endpoint() string { return "/v1/jobs" }

type stagedRequest struct {
	RequestID string  `json:"request_id"`
	Stages    []Stage `json:"stages"`
}

func (j StagedJob) payload(requestID string) any {
	return stagedRequest{RequestID: requestID, Stages: j.Stages}
}

// OutputImage is a single generated image reference.
type OutputImage struct {
	URL string `json:"url"`
}

// SuccessInfo carries the outputs of a SUCCESS job.
type SuccessInfo struct {
	Images []OutputImage `json:"images"`
}

// Job is the service-side view of a submitted job. The orchestrator only ever
// reads it.
type Job struct {
	ID          string       `json:"id"`
	Status      JobStatus    `json:"status"`
	SuccessInfo *SuccessInfo `json:"successInfo,omitempty"`

	// RequestID is the idempotency token the job was submitted with. It is
	// filled in locally by Submit and never decoded from the service.
	RequestID string `json:"-"`
}

// FirstImageURL returns the first non-empty output URL and how many images
// the job produced in total. Only single-output jobs are supported; the rest
// are ignored by callers.
func (j *Job) FirstImageURL() (string, int) {
	if j == nil || j.SuccessInfo == nil {
		return "", 0
	}
	for _, img := range j.SuccessInfo.Images {
		if u := strings.TrimSpace(img.URL); u != "" {
			return u, len(j.SuccessInfo.Images)
		}
	}
	return "", len(j.SuccessInfo.Images)
}

type jobEnvelope struct {
	Job *Job `json:"job"`
}

type uploadRequest struct {
	ExpireSec int64 `json:"expireSec"`
}

type uploadResponse struct {
	ResourceID string            `json:"resourceId"`
	PutURL     string            `json:"putUrl"`
	Headers    map[string]string `json:"headers"`
}

var (
	_ JobSpec = TemplateJob{}
	_ JobSpec = StagedJob{}
)
