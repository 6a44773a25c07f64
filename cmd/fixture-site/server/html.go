package server

// layoutHTML wraps every fixture page. Each page template defines "title"
// and "body".
const layoutHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{template "title" .}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        nav ul { list-style: none; padding: 0; }
        nav li { display: inline; margin-right: 15px; }
        h1 { color: #333; margin-bottom: 10px; }
        button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 8px 16px;
            border-radius: 4px;
            cursor: pointer;
        }
    </style>
</head>
<body>
    <div class="container">
        <nav>
            <ul>
                <li class="home"><a href="/">Home</a></li>
                <li class="explore"><a href="/explore">Explore</a></li>
                <li class="search"><a href="/search">Search</a></li>
            </ul>
        </nav>
        {{template "body" .}}
    </div>
</body>
</html>`

const homeHTML = `{{define "title"}}Fixture · Social Coding{{end}}
{{define "body"}}
<h1>Social Coding</h1>
<p class="tagline">A small site for exercising browser tests.</p>
<script>console.log("home", "ready");</script>
{{end}}`

const exploreHTML = `{{define "title"}}Explore · Fixture{{end}}
{{define "body"}}
<h1>Explore</h1>
<ul class="repos">
{{range .Repos}}    <li><a href="{{.Path}}">{{.Owner}}/{{.Name}}</a></li>
{{end}}</ul>
{{end}}`

const searchHTML = `{{define "title"}}Search · Fixture{{end}}
{{define "body"}}
<h1>Search</h1>
<form id="search" action="/search" method="get">
    <input type="text" name="q" value="{{.Query}}">
    <select id="type_value" name="type">
        <option value="Repositories"{{if eq .Type "Repositories"}} selected{{end}}>Repositories</option>
        <option value="Users"{{if eq .Type "Users"}} selected{{end}}>Users</option>
    </select>
    <button type="submit">Search</button>
</form>
{{if .Searched}}
<div class="header"><span class="title">{{.Type}} ({{len .Results}})</span></div>
<ul class="results">
{{range .Results}}    <li><a href="{{.Path}}">{{.Owner}}/{{.Name}}</a></li>
{{end}}</ul>
{{end}}
{{end}}`

const repoHTML = `{{define "title"}}{{.Owner}}/{{.Name}} · Fixture{{end}}
{{define "body"}}
<div class="title-actions-bar">
    <h1><span class="owner">{{.Owner}}</span> / <strong>{{.Name}}</strong></h1>
</div>
<p class="description">{{.Description}}</p>
{{end}}`

const slowHTML = `{{define "title"}}Slow · Fixture{{end}}
{{define "body"}}
<h1>Finally</h1>
<p>Delayed by {{.}}.</p>
{{end}}`
