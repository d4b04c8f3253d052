package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"rainbow-register/internal/models"
	"rainbow-register/internal/repository"
)

// CityUser is a profile as listed under a city on the map
type CityUser struct {
	ID           uint                 `json:"id"`
	Name         string               `json:"name"`
	SerialNumber string               `json:"serial_number"`
	Gender       string               `json:"gender"`
	Age          int                  `json:"age"`
	Status       models.ProfileStatus `json:"status"`
	WorkLocation string               `json:"work_location"`
	Industry     string               `json:"industry"`
}

// CityGroup aggregates the profiles working in one city
type CityGroup struct {
	City         string                       `json:"city"`
	Lat          *float64                     `json:"lat"`
	Lng          *float64                     `json:"lng"`
	Count        int                          `json:"count"`
	StatusCounts map[models.ProfileStatus]int `json:"status_counts"`
	Users        []CityUser                   `json:"users"`
}

// MapStats summarises the city distribution
type MapStats struct {
	TotalUsers   int    `json:"total_users"`
	TotalCities  int    `json:"total_cities"`
	TopCity      string `json:"top_city,omitempty"`
	TopCityCount int    `json:"top_city_count"`
}

// CityDistribution is the map read-model
type CityDistribution struct {
	Cities []*CityGroup `json:"cities"`
	Stats  MapStats     `json:"stats"`
}

type GeoService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

func NewGeoService(repo *repository.Repository, logger *zap.Logger) *GeoService {
	return &GeoService{repo: repo, logger: logger}
}

// ExtractCity derives a city from a free-text work location: the longest
// known city name the text starts with, else a known 3- or 2-character
// prefix, else the trimmed text itself.
func ExtractCity(location string) string {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return ""
	}
	for _, name := range cityNamesLongestFirst {
		if strings.HasPrefix(loc, name) {
			return name
		}
	}

	runes := []rune(loc)
	for _, n := range []int{3, 2} {
		if len(runes) >= n {
			if prefix := string(runes[:n]); hasCity(prefix) {
				return prefix
			}
		}
	}
	return loc
}

func hasCity(name string) bool {
	_, ok := cityCoordinates[name]
	return ok
}

// CityDistribution groups every profile with a work location by city
func (s *GeoService) CityDistribution(ctx context.Context) (*CityDistribution, error) {
	profiles, err := s.repo.ProfilesWithLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	return GroupByCity(profiles), nil
}

// GroupByCity builds the distribution from a profile snapshot. Cities are
// sorted by head count; ties keep first-seen order.
func GroupByCity(profiles []models.Profile) *CityDistribution {
	groups := make(map[string]*CityGroup)
	var order []*CityGroup

	for i := range profiles {
		p := &profiles[i]
		city := ExtractCity(p.WorkLocation)
		if city == "" {
			continue
		}

		g, ok := groups[city]
		if !ok {
			g = &CityGroup{
				City: city,
				StatusCounts: map[models.ProfileStatus]int{
					models.ProfileStatusApproved:  0,
					models.ProfileStatusPublished: 0,
					models.ProfileStatusPending:   0,
					models.ProfileStatusRejected:  0,
				},
				Users: []CityUser{},
			}
			if c, ok := LookupCity(city); ok {
				lat, lng := c.Lat, c.Lng
				g.Lat, g.Lng = &lat, &lng
			}
			groups[city] = g
			order = append(order, g)
		}

		g.Count++
		if _, tracked := g.StatusCounts[p.Status]; tracked {
			g.StatusCounts[p.Status]++
		}
		g.Users = append(g.Users, CityUser{
			ID:           p.ID,
			Name:         p.Name,
			SerialNumber: p.SerialNumber,
			Gender:       p.Gender,
			Age:          p.Age,
			Status:       p.Status,
			WorkLocation: p.WorkLocation,
			Industry:     p.Industry,
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Count > order[j].Count
	})

	dist := &CityDistribution{Cities: order}
	if dist.Cities == nil {
		dist.Cities = []*CityGroup{}
	}
	for _, g := range order {
		dist.Stats.TotalUsers += g.Count
		if g.Lat != nil {
			dist.Stats.TotalCities++
		}
	}
	if len(order) > 0 {
		dist.Stats.TopCity = order[0].City
		dist.Stats.TopCityCount = order[0].Count
	}
	return dist
}
