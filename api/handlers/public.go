package handlers

import (
	"net/http"
	"os"

	"github.com/moguldesignsjordan/mogul-ai-agent/api"
)

// DefaultBrandColor 未配置品牌色时使用
const DefaultBrandColor = "#111827"

// ConfigHandler GET /config
func ConfigHandler(calLink, brandColor string) http.HandlerFunc {
	if brandColor == "" {
		brandColor = DefaultBrandColor
	}
	body := api.ConfigResponse{CalLink: calLink, BrandColor: brandColor}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, body)
	}
}

// RootHandler 只处理 "/"，其它未注册路径返回 404
func RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/ui/", http.StatusFound)
}

// FaviconHandler 返回 204
func FaviconHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// UIHandler 目录不存在时返回 nil
func UIHandler(dir string) http.Handler {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return http.StripPrefix("/ui/", http.FileServer(http.Dir(dir)))
}
