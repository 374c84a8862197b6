package handlers

import "html/template"

var fleetlinkTemplates = template.Must(template.New("fleetlink").Parse(`
{{define "layout-head"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head><body>
<h1>{{.Title}}</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}{{end}}

{{define "layout-foot"}}</body></html>{{end}}

{{define "request-trip"}}{{template "layout-head" .}}
{{if .Vehicles}}
<form method="post" action="/request-trip">
  <label>Vehicle
    <select name="vehicle_id" required>
    {{range .Vehicles}}<option value="{{.ID}}">{{.Label}}</option>{{end}}
    </select>
  </label>
  <label>Your name <input name="requester_name" value="{{.RequesterName}}" required></label>
  <label>Your email <input type="email" name="requester_email" value="{{.RequesterEmail}}" required></label>
  <label>Destination <input name="destination" value="{{.Destination}}" required></label>
  <label>Purpose <textarea name="purpose">{{.Purpose}}</textarea></label>
  <button type="submit">Request vehicle</button>
</form>
{{else}}
<p>No vehicles are available right now.</p>
{{end}}
{{template "layout-foot" .}}{{end}}

{{define "return-trip"}}{{template "layout-head" .}}
<p>{{.Vehicle}} checked out to {{.Trip.RequesterName}} for {{.Trip.Destination}}.</p>
<p>Starting mileage: {{.StartingMileage}}</p>
<form method="post" action="{{.Action}}">
  <label>Ending mileage <input type="number" name="ending_mileage" min="{{.StartingMileage}}" required></label>
  <label>Notes <textarea name="notes"></textarea></label>
  <button type="submit">Return vehicle</button>
</form>
{{template "layout-foot" .}}{{end}}
`))
