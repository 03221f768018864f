// Package domain models parking recommendation requests and the fee rules of
// public parking facilities.
//
// # Requests
//
// A request lists candidate facilities by identifier together with an
// optional trip duration (minutes, default 120) and optional caller
// coordinates. Each candidate may carry a star rating, a weekday, an hour,
// and a caller-reported congestion reading:
//
//	{"candidates": [{"p_id": "171", "review": 4.2, "weekday": 3, "hour": 14, "congestion": 35}],
//	 "parking_duration": 120, "base_lat": 37.45, "base_lon": 127.129}
//
// Weekdays arrive 1-based (1 = Monday ... 7 = Sunday) and are converted once to
// a 0-based index, wrapping out-of-range values, so 0 becomes Sunday and 8
// becomes Monday. A reading may also be given as raw occupancy
// (total_spaces, current_vehicles); an explicit percentage wins when both are
// present.
//
// Facility identifiers are joined against every reference table after
// trimming and lower-casing. See [NormalizeFacilityID].
//
// # Fees
//
// A tariff charges a base fee for an included period and then a fixed amount
// per started unit of extra time:
//
//	fee = base                                    if duration <= base minutes
//	fee = base + ceil((duration - base) / unit) * extra
//
// Units default to 5 minutes. A positive daily cap bounds the fee; a zero cap
// is a data-entry artifact in the source registries and is ignored. See
// [CalculateFee].
//
// # Errors
//
// [ErrMalformedRequest] rejects a whole request. Problems scoped to a single
// candidate are never errors; they degrade that candidate's signals.
package domain
