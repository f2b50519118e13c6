package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	apiPrefix     = "/api/v1"
	devicesPrefix = apiPrefix + "/devices/"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodIs(w http.ResponseWriter, req *http.Request, method string) bool {
	if req.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// RegisterVitalRiskRoutes 分类、模型与设备结果路由
func (r *Router) RegisterVitalRiskRoutes(h *VitalRiskHandler) {
	r.Handle(apiPrefix+"/health", func(w http.ResponseWriter, req *http.Request) {
		if methodIs(w, req, http.MethodGet) {
			h.Health(w, req)
		}
	})

	r.Handle(apiPrefix+"/classify", func(w http.ResponseWriter, req *http.Request) {
		if methodIs(w, req, http.MethodPost) {
			h.Classify(w, req)
		}
	})

	r.Handle(apiPrefix+"/model-info", func(w http.ResponseWriter, req *http.Request) {
		if methodIs(w, req, http.MethodGet) {
			h.ModelInfo(w, req)
		}
	})

	r.Handle(apiPrefix+"/model/reload", func(w http.ResponseWriter, req *http.Request) {
		if methodIs(w, req, http.MethodPost) {
			h.ReloadModel(w, req)
		}
	})

	// devices/{device_id}/latest | devices/{device_id}/history
	r.Handle(devicesPrefix, func(w http.ResponseWriter, req *http.Request) {
		if !methodIs(w, req, http.MethodGet) {
			return
		}
		deviceID, action, ok := splitDevicePath(req.URL.Path)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch action {
		case "latest":
			h.GetLatest(w, req, deviceID)
		case "history":
			h.GetHistory(w, req, deviceID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterTrainingRoutes 训练样本导入导出
func (r *Router) RegisterTrainingRoutes(h *TrainingHandler) {
	r.Handle(apiPrefix+"/training-examples/export", func(w http.ResponseWriter, req *http.Request) {
		if methodIs(w, req, http.MethodGet) {
			h.Export(w, req)
		}
	})

	r.Handle(apiPrefix+"/training-examples/import", func(w http.ResponseWriter, req *http.Request) {
		if methodIs(w, req, http.MethodPost) {
			h.Import(w, req)
		}
	})
}

func splitDevicePath(path string) (deviceID, action string, ok bool) {
	rest := strings.TrimPrefix(path, devicesPrefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// RouteLabel 把路径归一化为指标标签，避免设备 ID 造成高基数
func RouteLabel(req *http.Request) string {
	path := req.URL.Path
	if strings.HasPrefix(path, devicesPrefix) {
		if _, action, ok := splitDevicePath(path); ok && (action == "latest" || action == "history") {
			return devicesPrefix + ":device_id/" + action
		}
		return devicesPrefix + "*"
	}
	switch path {
	case apiPrefix + "/health",
		apiPrefix + "/classify",
		apiPrefix + "/model-info",
		apiPrefix + "/model/reload",
		apiPrefix + "/training-examples/export",
		apiPrefix + "/training-examples/import",
		"/metrics":
		return path
	default:
		return "other"
	}
}
