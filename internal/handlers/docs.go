package handlers

import (
	"encoding/json"
	"net/http"
)

func queryParam(name, description string, required bool, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      schema,
	}
}

func pathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

var (
	stringSchema  = map[string]interface{}{"type": "string"}
	dateSchema    = map[string]interface{}{"type": "string", "format": "date"}
	boolSchema    = map[string]interface{}{"type": "boolean", "default": false}
	errorResponse = jsonResponse("Error", ref("Error"))
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the radar uptime API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	stationParam := queryParam("station", "Station code (e.g. sas) or numeric station id", false, stringSchema)

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Radar Uptime API",
			"description": "Per-file rawacf session records and daily station uptime",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/records": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List session records",
					"description": "Records overlapping the date window, ordered by start time",
					"parameters": []map[string]interface{}{
						stationParam,
						queryParam("start_date", "First day of the window (YYYY-MM-DD)", false, dateSchema),
						queryParam("end_date", "Last day of the window, inclusive (YYYY-MM-DD)", false, dateSchema),
						queryParam("valid_only", "Only return records without objections", false, boolSchema),
						queryParam("page", "Page number (default: 1)", false, map[string]interface{}{"type": "integer", "default": 1}),
						queryParam("limit", "Records per page (default: 100, max: 1000)", false, map[string]interface{}{"type": "integer", "default": 100}),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":        map[string]interface{}{"type": "array", "items": ref("Record")},
								"total":       map[string]string{"type": "integer"},
								"page":        map[string]string{"type": "integer"},
								"limit":       map[string]string{"type": "integer"},
								"total_pages": map[string]string{"type": "integer"},
							},
						}),
						"400": errorResponse,
						"500": errorResponse,
					},
				},
			},
			"/api/records/{station}/{start}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get one session record",
					"parameters": []map[string]interface{}{
						pathParam("station", "Station code or numeric id"),
						pathParam("start", "Session start, YYYY-MM-DDTHH:MM:SS.ffffff UTC"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", ref("Record")),
						"400": errorResponse,
						"404": errorResponse,
					},
				},
			},
			"/api/uptime": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Daily uptime for a station",
					"description": "Seconds of recorded data per UTC day; sessions crossing midnight are split between days",
					"parameters": []map[string]interface{}{
						queryParam("station", "Station code (e.g. sas) or numeric station id", true, stringSchema),
						queryParam("start_date", "First day (YYYY-MM-DD, default: end_date)", false, dateSchema),
						queryParam("end_date", "Last day, inclusive (YYYY-MM-DD, default: today)", false, dateSchema),
						queryParam("include_invalid", "Count records with objections", false, boolSchema),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"station_id":      map[string]string{"type": "integer"},
								"start_date":      map[string]string{"type": "string", "format": "date"},
								"end_date":        map[string]string{"type": "string", "format": "date"},
								"include_invalid": map[string]string{"type": "boolean"},
								"days": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"date":       map[string]string{"type": "string", "format": "date-time"},
											"station_id": map[string]string{"type": "integer"},
											"seconds":    map[string]string{"type": "number"},
											"fraction":   map[string]string{"type": "number"},
											"records":    map[string]string{"type": "integer"},
										},
									},
								},
							},
						}),
						"400": errorResponse,
						"500": errorResponse,
					},
				},
			},
			"/api/stations": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List stations",
					"description": "The station table merged with stations present in storage",
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"code":        map[string]string{"type": "string"},
											"id":          map[string]string{"type": "integer"},
											"beams":       map[string]string{"type": "integer"},
											"legacy":      map[string]string{"type": "boolean"},
											"has_records": map[string]string{"type": "boolean"},
											"known":       map[string]string{"type": "boolean"},
										},
									},
								},
								"total": map[string]string{"type": "integer"},
							},
						}),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Service and database are healthy"},
						"503": map[string]interface{}{"description": "Database unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Prometheus metrics",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Metrics in Prometheus text format"},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Record": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"station_id":             map[string]string{"type": "integer", "description": "-1 when inconsistent"},
						"start_time":             map[string]string{"type": "string", "format": "date-time"},
						"end_time":               map[string]string{"type": "string", "format": "date-time"},
						"command_name":           map[string]string{"type": "string"},
						"command_args":           map[string]string{"type": "string"},
						"control_program_id":     map[string]string{"type": "integer", "description": "-1 when inconsistent"},
						"min_pulse_count":        map[string]string{"type": "integer"},
						"times_consistent":       map[string]string{"type": "boolean"},
						"is_valid":               map[string]string{"type": "boolean"},
						"min_tx_freq":            map[string]string{"type": "integer"},
						"max_tx_freq":            map[string]string{"type": "integer"},
						"cross_correlation_flag": map[string]string{"type": "integer", "description": "-1 when inconsistent"},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
