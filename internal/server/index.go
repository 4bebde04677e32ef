package server

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"

	"github.com/conneroisu/livecode/internal/lesson"
	"github.com/conneroisu/livecode/internal/version"
)

// Lesson descriptions may carry inline markup from the manifest.
var descriptionPolicy = bluemonday.UGCPolicy()

// indexPage lists the lessons with a link to each.
func indexPage(mods []*lesson.Module) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		page := pageHeader
		if len(mods) == 0 {
			page += `<p class="empty">No lessons found.</p>`
		} else {
			page += `<ul class="lesson-list">`
			for _, mod := range mods {
				page += `<li class="lesson-card"><a href="` +
					templ.EscapeString(string(templ.URL("/lessons/"+mod.Name))) + `">` +
					templ.EscapeString(mod.Title) + `</a>`
				if mod.Manifest.Description != "" {
					page += `<p class="lesson-description">` + descriptionPolicy.Sanitize(mod.Manifest.Description) + `</p>`
				}
				page += `<span class="lesson-meta">` + strconv.Itoa(len(mod.Table)) + ` snippets</span></li>`
			}
			page += `</ul>`
		}
		page += `<footer>livecode ` + templ.EscapeString(version.Get().Short()) + `</footer></main></body></html>`

		_, err := io.WriteString(w, page)
		return err
	})
}

const pageHeader = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Lessons</title>
<link rel="stylesheet" href="/static/livecode.css">
</head>
<body>
<main class="lesson-index">
<h1>Lessons</h1>
`
