package domain

import "sort"

type ServiceCode string

const (
	ServiceSwedishMassage     ServiceCode = "massage-suedois"
	ServiceCalifornianMassage ServiceCode = "massage-californien"
	ServiceSportsMassage      ServiceCode = "massage-sportif"
	ServiceHotStones          ServiceCode = "pierres-chaudes"
	ServiceReflexology        ServiceCode = "reflexologie"
	ServiceOlfactotherapy     ServiceCode = "olfactotherapie"
)

// Service is an entry of the fixed catalog. Prices are in euro cents.
type Service struct {
	Code            ServiceCode `json:"code"`
	Name            string      `json:"name"`
	DurationMinutes int         `json:"duration"`
	PriceCents      int64       `json:"priceCents"`
}

var catalog = map[ServiceCode]Service{
	ServiceSwedishMassage:     {Code: ServiceSwedishMassage, Name: "Massage Suédois", DurationMinutes: 60, PriceCents: 7500},
	ServiceCalifornianMassage: {Code: ServiceCalifornianMassage, Name: "Massage Californien", DurationMinutes: 60, PriceCents: 7500},
	ServiceSportsMassage:      {Code: ServiceSportsMassage, Name: "Massage Sportif", DurationMinutes: 60, PriceCents: 7500},
	ServiceHotStones:          {Code: ServiceHotStones, Name: "Massage aux Pierres Chaudes", DurationMinutes: 90, PriceCents: 11000},
	ServiceReflexology:        {Code: ServiceReflexology, Name: "Réflexologie Plantaire", DurationMinutes: 30, PriceCents: 4500},
	ServiceOlfactotherapy:     {Code: ServiceOlfactotherapy, Name: "Olfactothérapie", DurationMinutes: 60, PriceCents: 7500},
}

func LookupService(code ServiceCode) (Service, bool) {
	s, ok := catalog[code]
	return s, ok
}

// ServiceName falls back to the raw code for unknown services.
func ServiceName(code ServiceCode) string {
	if s, ok := catalog[code]; ok {
		return s.Name
	}
	return string(code)
}

func Services() []Service {
	out := make([]Service, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
