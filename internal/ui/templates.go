package ui

import (
	"fmt"
	"html/template"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/luna/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return humanize.Time(t)
	},
	"agoPtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return humanize.Time(*t)
	},
	"distance": func(d *float64) string {
		if d == nil {
			return ""
		}
		return humanize.FtoaWithDigits(*d, 1) + " km away"
	},
	"statusColor": func(s model.AlertStatus) string {
		switch s {
		case model.AlertStatusPending:
			return "border-rose-500"
		case model.AlertStatusAccepted:
			return "border-emerald-400"
		default:
			return "border-gray-300"
		}
	},
	"initial": func(name string) string {
		name = strings.TrimSpace(name)
		if name == "" {
			return "?"
		}
		return strings.ToUpper(string([]rune(name)[0]))
	},
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

// renderTemplate renders a page inside the layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(templates["layout"])
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err := tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			if _, err := tmpl.New(path.Base(compName)).Parse(compContent); err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}

	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://cdn.tailwindcss.com"></script>
    {{if .Session}}<meta http-equiv="refresh" content="15">{{end}}
</head>
<body class="bg-slate-950 text-slate-100 min-h-screen">
    {{if .Session}}
    <nav class="border-b border-slate-800">
        <div class="max-w-3xl mx-auto px-4 flex justify-between h-16 items-center">
            <div class="flex items-center space-x-6">
                <span class="text-xl font-bold text-violet-400">Luna</span>
                <a href="/dashboard" class="text-sm text-slate-400 hover:text-slate-100">Dashboard</a>
                <a href="/receiver" class="text-sm text-slate-400 hover:text-slate-100">Incoming</a>
            </div>
            <div class="flex items-center space-x-4">
                <span class="text-sm text-slate-400">{{.Session.Name}} ({{.Session.Role}})</span>
                <form action="/logout" method="POST">
                    <button type="submit" class="text-sm text-rose-400 hover:text-rose-300">Sign out</button>
                </form>
            </div>
        </div>
    </nav>
    {{end}}

    <main class="max-w-3xl mx-auto py-6 px-4">
        {{template "content" .}}
    </main>
</body>
</html>`,

	"components/flash": `{{if .Error}}
<div class="rounded-md bg-rose-900/40 p-4 mb-4 text-sm text-rose-200">{{.Error}}</div>
{{end}}{{if .Notice}}
<div class="rounded-md bg-emerald-900/40 p-4 mb-4 text-sm text-emerald-200">{{.Notice}}</div>
{{end}}`,

	"components/alertList": `<h3 class="mb-4 font-semibold">Incoming Alerts</h3>
{{range .State.FriendAlerts}}
<div class="rounded-lg bg-slate-900 p-5 mb-3 border-l-4 {{statusColor .Status}}">
    <div class="flex justify-between">
        <div class="flex items-center space-x-3">
            <span class="rounded-full bg-violet-900 w-10 h-10 flex items-center justify-center">{{initial .SenderName}}</span>
            <div>
                <h4 class="font-semibold">{{.SenderName}}</h4>
                <p class="text-sm text-slate-400">Needs a {{.ProductType}} &middot; {{ago .Timestamp}}</p>
            </div>
        </div>
        <span class="text-xs text-slate-500">{{distance .Distance}}</span>
    </div>
    {{if .LocationRevealed}}
    <p class="mt-3 text-emerald-300">Location: {{.Location}}</p>
    {{else if eq .Status "pending"}}
    <form action="/alerts/{{.ID}}/accept" method="POST" class="mt-3">
        <input type="hidden" name="return" value="{{$.Return}}"><input type="hidden" name="tab" value="alerts">
        <button type="submit" class="w-full rounded-md bg-violet-600 py-2">Accept and help</button>
    </form>
    {{else}}
    <p class="mt-3 text-slate-400">{{if .HelperName}}{{.HelperName}} is helping.{{else}}{{.Status}}{{end}}</p>
    {{end}}
</div>
{{else}}
<p class="text-slate-500">No alerts from friends right now.</p>
{{end}}`,

	"auth": `{{define "content"}}
<div class="max-w-md mx-auto mt-16 space-y-8">
    <div class="text-center">
        <h1 class="text-4xl font-extrabold text-violet-400">Luna</h1>
        <p class="mt-2 text-sm text-slate-400">Friends who have your back, when you need it.</p>
    </div>
    {{template "flash" .}}
    <form class="space-y-4" action="/" method="POST">
        <input type="hidden" name="mode" value="{{.Mode}}">
        {{if eq .Mode "signup"}}
        <input name="name" type="text" value="{{.Name}}" placeholder="Name"
               class="block w-full rounded-md bg-slate-900 border border-slate-700 px-3 py-2">
        {{end}}
        <input name="email" type="email" value="{{.Email}}" placeholder="Email"
               class="block w-full rounded-md bg-slate-900 border border-slate-700 px-3 py-2">
        <input name="password" type="password" placeholder="Password"
               class="block w-full rounded-md bg-slate-900 border border-slate-700 px-3 py-2">
        {{if eq .Mode "signup"}}
        <div class="flex space-x-6 text-sm">
            <label><input type="radio" name="role" value="sender" {{if ne .Role "receiver"}}checked{{end}}> I may need help</label>
            <label><input type="radio" name="role" value="receiver" {{if eq .Role "receiver"}}checked{{end}}> I can help</label>
        </div>
        {{end}}
        <button type="submit" class="w-full rounded-md bg-violet-600 hover:bg-violet-500 py-2 font-medium">
            {{if eq .Mode "signup"}}Create account{{else}}Sign in{{end}}
        </button>
    </form>
    <p class="text-center text-sm text-slate-400">
        {{if eq .Mode "signup"}}
        Already have an account? <a href="/" class="text-violet-400">Sign in</a>
        {{else}}
        New here? <a href="/?mode=signup" class="text-violet-400">Create an account</a>
        {{end}}
    </p>
</div>
{{end}}`,

	"dashboard": `{{define "content"}}
{{template "flash" .}}
<div class="flex space-x-2 mb-6">
    {{range .Tabs}}
    <a href="/dashboard?tab={{.}}" class="px-3 py-1 rounded-full text-sm {{if eq . $.Tab}}bg-violet-600{{else}}bg-slate-800 text-slate-400{{end}}">
        {{title .}}{{if and (eq . "alerts") $.Pending}} ({{$.Pending}}){{end}}{{if and (eq . "requests") $.State.Requests}} ({{len $.State.Requests}}){{end}}
    </a>
    {{end}}
</div>

{{if eq .Tab "home"}}
    {{$own := .State.UserAlert}}
    {{if and $own (not $own.Status.IsTerminal)}}{{with $own}}
    <div class="rounded-lg bg-slate-900 p-6 border-l-4 {{statusColor .Status}}">
        <h3 class="text-lg font-semibold">{{if eq .Status "accepted"}}Help is on the way{{else}}Alert sent!{{end}}</h3>
        <p class="text-sm text-slate-400 mt-1">{{.ProductType}} &middot; {{.Status}} &middot; {{ago .Timestamp}}</p>
        {{if .HelperName}}<p class="mt-2 text-emerald-300">{{.HelperName}} accepted your alert.</p>{{end}}
        <form action="/alerts/cancel" method="POST" class="mt-4">
            <input type="hidden" name="return" value="/dashboard">
            <button type="submit" class="w-full rounded-md border border-rose-500 text-rose-400 py-2">Cancel alert</button>
        </form>
    </div>
    {{end}}{{else}}
    <div class="rounded-lg bg-slate-900 p-6 text-center">
        <h3 class="text-slate-400 mb-4">What do you need?</h3>
        <form action="/alerts" method="POST" class="flex justify-center space-x-4">
            <input type="hidden" name="return" value="/dashboard">
            {{range .Products}}
            <button type="submit" name="product" value="{{.}}" class="rounded-lg bg-rose-600 hover:bg-rose-500 px-6 py-3 font-semibold">{{.}}</button>
            {{end}}
        </form>
    </div>
    {{end}}
{{end}}

{{if eq .Tab "alerts"}}
    {{template "alertList" .}}
{{end}}

{{if eq .Tab "friends"}}
<h3 class="mb-4 font-semibold">My Friends ({{len .State.Friends}})</h3>
{{range .State.Friends}}
<div class="rounded-lg bg-slate-900 p-3 mb-2 flex justify-between items-center">
    <div><span class="font-medium">{{.Name}}</span> <span class="text-xs text-slate-500">{{.Role}}</span></div>
    <form action="/friends/{{.ID}}/remove" method="POST">
        <input type="hidden" name="return" value="/dashboard"><input type="hidden" name="tab" value="friends">
        <button type="submit" class="text-sm text-rose-400">Remove</button>
    </form>
</div>
{{else}}
<p class="text-slate-500">No friends yet. <a href="/dashboard?tab=search" class="text-violet-400">Find friends</a></p>
{{end}}
{{end}}

{{if eq .Tab "requests"}}
<h3 class="mb-4 font-semibold">Friend Requests ({{len .State.Requests}})</h3>
{{range .State.Requests}}
<div class="rounded-lg bg-slate-900 p-4 mb-2">
    <p><span class="font-medium">{{.SenderName}}</span> <span class="text-xs text-slate-500">{{agoPtr .CreatedAt}}</span></p>
    <div class="flex space-x-2 mt-2">
        <form action="/friends/requests/{{.ID}}/accept" method="POST">
            <input type="hidden" name="return" value="/dashboard"><input type="hidden" name="tab" value="requests">
            <button type="submit" class="rounded-md bg-violet-600 px-4 py-1 text-sm">Accept</button>
        </form>
        <form action="/friends/requests/{{.ID}}/deny" method="POST">
            <input type="hidden" name="return" value="/dashboard"><input type="hidden" name="tab" value="requests">
            <button type="submit" class="rounded-md border border-slate-600 px-4 py-1 text-sm">Deny</button>
        </form>
    </div>
</div>
{{else}}
<p class="text-slate-500">No pending requests.</p>
{{end}}
{{end}}

{{if eq .Tab "search"}}
<h3 class="mb-4 font-semibold">Find Friends</h3>
<form action="/dashboard" method="GET" class="mb-4">
    <input name="q" value="{{.Query}}" placeholder="Search by name..."
           class="block w-full rounded-md bg-slate-900 border border-slate-700 px-3 py-2">
</form>
{{range .Results}}
<div class="rounded-lg bg-slate-900 p-3 mb-2 flex justify-between items-center">
    <div><span class="font-medium">{{.Name}}</span> <span class="text-xs text-slate-500">{{.Role}}</span></div>
    {{if .IsFriend}}
    <span class="text-sm text-emerald-400">Friend</span>
    {{else}}
    <form action="/friends/request" method="POST">
        <input type="hidden" name="user_id" value="{{.ID}}"><input type="hidden" name="name" value="{{.Name}}">
        <input type="hidden" name="return" value="/dashboard"><input type="hidden" name="tab" value="search">
        <button type="submit" class="rounded-md bg-violet-600 px-4 py-1 text-sm">Add</button>
    </form>
    {{end}}
</div>
{{else}}
{{if .Query}}<p class="text-slate-500">No users found.</p>{{end}}
{{end}}
{{end}}
{{end}}`,

	"receiver": `{{define "content"}}
{{template "flash" .}}
{{template "alertList" .}}
{{end}}`,
}
