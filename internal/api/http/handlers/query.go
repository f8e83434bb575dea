package handlers

import "strconv"

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
