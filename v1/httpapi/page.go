package httpapi

import (
	"html/template"
	"net/http"
	"net/url"
)

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Door Control</title>
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: Arial, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background-color: #f5f5f5; }
    .container { background: white; padding: 20px; border-radius: 10px; box-shadow: 0 2px 10px rgba(0, 0, 0, 0.1); width: 300px; text-align: center; }
    input { width: 100%; padding: 12px; margin-bottom: 15px; border: 1px solid #ddd; border-radius: 4px; box-sizing: border-box; font-size: 18px; }
    button { width: 100%; padding: 15px; color: white; border: none; border-radius: 4px; cursor: pointer; font-size: 18px; }
    button.unlock { background-color: #4CAF50; }
    button.lock { margin-top: 10px; background-color: #222222; }
    .error { color: red; }
    .success { color: green; }
  </style>
</head>
<body>
  <div class="container">
    <h2>Door Control</h2>
    <p>The door is <strong>{{.State}}</strong>{{if .Busy}} and moving{{end}}.</p>
    {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
    {{if .Success}}<p class="success">Success!</p>{{end}}
    <form action="/door-control" method="post">
      <input type="password" name="passcode" placeholder="Enter Passcode" required>
      <button class="unlock" type="submit" name="action" value="unlock">Unlock Door</button>
      <button class="lock" type="submit" name="action" value="lock">Lock Door</button>
    </form>
  </div>
</body>
</html>
`))

// formMessages maps the error query parameter of /home to its text.
var formMessages = map[string]string{
	"invalid_password": "Invalid password. Please try again.",
	"in_use":           "Lock is in use. Please try again later.",
	"internal_error":   "Internal service issue. Please try again. Service may need to be restarted.",
	"invalid_action":   "Unknown action.",
	"locked_out":       "Too many failed attempts. Please wait a minute.",
}

type homeData struct {
	State   string
	Busy    bool
	Error   string
	Success bool
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := homeData{
		State:   s.state.State().String(),
		Busy:    s.state.Busy(),
		Error:   formMessages[q.Get("error")],
		Success: q.Has("success"),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homeTemplate.Execute(w, data); err != nil {
		s.logger.Error("doorlock: render home", "error", err)
	}
}

// formCode returns the /home error code for a failed request.
func formCode(err error) string {
	switch err {
	case errInvalidCred:
		return "invalid_password"
	case errInUse:
		return "in_use"
	case errInvalidAction:
		return "invalid_action"
	case errLockedOut:
		return "locked_out"
	}
	return "internal_error"
}

func (s *Server) doorControl(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<12)
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/home?error=invalid_action", http.StatusSeeOther)
		return
	}
	_, err := s.request(r.Context(), clientKey(r), r.PostFormValue("action"), r.PostFormValue("passcode"))
	if err != nil {
		http.Redirect(w, r, "/home?error="+url.QueryEscape(formCode(err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/home?success", http.StatusSeeOther)
}
