package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	ie "github.com/voidshard/igor/pkg/errors"
	"github.com/voidshard/igor/pkg/structs"
)

var errmap = map[int][]error{
	http.StatusBadRequest: {
		ie.ErrNoTasks,
		ie.ErrNoTaskType,
		ie.ErrInvalidState,
		ie.ErrInvalidArg,
		ie.ErrNotSupported,
		ie.ErrUpdateInProgress,
		ie.ErrNoUpdateRegistered,
		ie.ErrUpdateTokenMismatch,
		ie.ErrUnrecognizedShards,
		ie.ErrNoActiveTasks,
		ie.ErrUpdateInFlight,
	},
	http.StatusNotFound: {
		ie.ErrNotFound,
	},
	http.StatusUnauthorized: {
		ie.ErrAuthFailed,
	},
}

// mapError returns the http status code an error from the core maps to,
// or http.StatusInternalServerError if it isn't one we recognise.
func mapError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for code, errs := range errmap {
		for _, e := range errs {
			if errors.Is(err, e) {
				return code
			}
		}
	}
	return http.StatusInternalServerError
}

// unmarshalQuery populates out from the request's query-string
// parameters, the way the teacher's server/util.go does for its own
// structs.Query.
func unmarshalQuery(w http.ResponseWriter, r *http.Request, out *structs.Query) error {
	q := r.URL.Query()

	if q.Has("limit") {
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return fmt.Errorf("bad limit: %w", err)
		}
		out.Limit = limit
	}
	if q.Has("offset") {
		offset, err := strconv.Atoi(q.Get("offset"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return fmt.Errorf("bad offset: %w", err)
		}
		out.Offset = offset
	}

	out.Role = q.Get("role")
	out.Environment = q.Get("environment")
	out.JobName = q.Get("job_name")
	out.SlaveHost = q.Get("slave_host")

	if q.Has("task_ids") {
		out.TaskIds = q["task_ids"]
	}
	if q.Has("shard_ids") {
		for _, s := range q["shard_ids"] {
			id, err := strconv.Atoi(s)
			if err != nil {
				http.Error(w, "bad shard id", http.StatusBadRequest)
				return fmt.Errorf("bad shard id: %v", s)
			}
			out.ShardIds = append(out.ShardIds, id)
		}
	}
	if q.Has("statuses") {
		for _, s := range q["statuses"] {
			st := structs.ToStatus(s)
			if st == "" {
				http.Error(w, "bad status", http.StatusBadRequest)
				return fmt.Errorf("bad status: %v", s)
			}
			out.Statuses = append(out.Statuses, st)
		}
	}

	out.Sanitize()
	return nil
}

// unmarshalJson decodes the request body into obj, writing a 400 to w on
// failure.
func unmarshalJson(w http.ResponseWriter, r *http.Request, obj interface{}) error {
	if r.Body == nil {
		http.Error(w, "no body", http.StatusBadRequest)
		return fmt.Errorf("no body")
	}
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(obj); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}

func writeJson(w http.ResponseWriter, obj interface{}) {
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
