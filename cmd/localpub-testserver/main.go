// Command localpub-testserver serves a small page to try a tunnel against.
package main

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jpillora/requestlog"
	"github.com/sirupsen/logrus"

	"localpub/internal/constants"
	"localpub/internal/logger"
	"localpub/internal/utils"
)

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Test Server</title>
  <style>
    body { font-family: Arial, sans-serif; text-align: center; background: linear-gradient(45deg, #667eea 0%, #764ba2 100%); color: white; padding: 50px; }
    .container { background: rgba(255,255,255,0.1); padding: 40px; border-radius: 15px; }
    h1 { font-size: 3em; margin-bottom: 20px; }
    .time { font-size: 2em; color: #ffeb3b; font-weight: bold; margin-top: 20px; }
  </style>
</head>
<body>
  <div class="container">
    <h1>🚀 {{.App}} Test Server</h1>
    <p>Your tunnel is working perfectly!</p>
    <p>Server running on port {{.Port}}</p>
    <div class="time" id="time"></div>
    <p style="margin-top: 30px;">
      <strong>Request URL:</strong> {{.URL}}<br>
      <strong>User Agent:</strong> {{.UserAgent}}<br>
      <strong>Time:</strong> {{.Time}}
    </p>
  </div>
  <script>
    function updateTime() { document.getElementById('time').textContent = new Date().toLocaleTimeString(); }
    updateTime();
    setInterval(updateTime, 1000);
  </script>
</body>
</html>
`))

func newHandler(port int, log logrus.FieldLogger) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := page.Execute(w, map[string]interface{}{
			"App":       constants.AppName,
			"Port":      port,
			"URL":       req.URL.RequestURI(),
			"UserAgent": req.UserAgent(),
			"Time":      time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			log.WithError(err).Warn("Failed to render page")
		}
	})
	return r
}

func main() {
	log := logger.New(logger.Options{})
	port := utils.GetEnvInt("PORT", constants.DefaultPort)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           requestlog.Wrap(newHandler(port, log)),
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
	}

	log.Infof("🌟 Test server running on %s", utils.LocalURL(port))
	log.Infof("Ready to test with %s!", constants.AppName)
	if err := server.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("Test server failed")
	}
}
