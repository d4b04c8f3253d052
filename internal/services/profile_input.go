package services

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"gorm.io/datatypes"

	"rainbow-register/internal/models"
)

// ProfileInput is the holder-editable part of a profile as submitted by the client
type ProfileInput struct {
	InvitationCode string `json:"invitation_code"`

	Name          string `json:"name"`
	Gender        string `json:"gender"`
	Birthday      string `json:"birthday"`
	Age           int    `json:"age"`
	Height        int    `json:"height"`
	Weight        int    `json:"weight"`
	BodyType      string `json:"body_type"`
	Hometown      string `json:"hometown"`
	WorkLocation  string `json:"work_location"`
	Industry      string `json:"industry"`
	Constellation string `json:"constellation"`
	MBTI          string `json:"mbti"`
	WechatID      string `json:"wechat_id"`

	MaritalStatus   string `json:"marital_status"`
	HealthCondition string `json:"health_condition"`
	HousingStatus   string `json:"housing_status"`
	DatingPurpose   string `json:"dating_purpose"`
	WantChildren    string `json:"want_children"`
	ComingOutStatus string `json:"coming_out_status"`

	Lifestyle           string `json:"lifestyle"`
	ActivityExpectation string `json:"activity_expectation"`
	SpecialRequirements string `json:"special_requirements"`

	Expectation *models.Expectation `json:"expectation"`
	Hobbies     []string            `json:"hobbies"`
	Photos      []string            `json:"photos"`
}

const (
	maxHobbies = 20
	maxPhotos  = 9
)

// Validate checks ranges once at the boundary
func (in *ProfileInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Gender = strings.TrimSpace(in.Gender)

	if err := runeLength("name", in.Name, 1, 50); err != nil {
		return err
	}
	if err := runeLength("gender", in.Gender, 1, 10); err != nil {
		return err
	}
	if err := intRange("age", in.Age, 18, 80); err != nil {
		return err
	}
	if err := intRange("height", in.Height, 140, 220); err != nil {
		return err
	}
	if err := intRange("weight", in.Weight, 30, 200); err != nil {
		return err
	}
	if len(in.Hobbies) > maxHobbies {
		return &ValidationError{Field: "hobbies", Message: "最多 20 项"}
	}
	if len(in.Photos) > maxPhotos {
		return &ValidationError{Field: "photos", Message: "最多 9 张"}
	}
	return nil
}

// apply copies the input onto a new profile
func (in *ProfileInput) apply(p *models.Profile) {
	p.Name = in.Name
	p.Gender = in.Gender
	p.Birthday = in.Birthday
	p.Age = in.Age
	p.Height = in.Height
	p.Weight = in.Weight
	p.BodyType = in.BodyType
	p.Hometown = in.Hometown
	p.WorkLocation = strings.TrimSpace(in.WorkLocation)
	p.Industry = in.Industry
	p.Constellation = in.Constellation
	p.MBTI = in.MBTI
	p.WechatID = in.WechatID
	p.MaritalStatus = in.MaritalStatus
	p.HealthCondition = in.HealthCondition
	p.HousingStatus = in.HousingStatus
	p.DatingPurpose = in.DatingPurpose
	p.WantChildren = in.WantChildren
	p.ComingOutStatus = in.ComingOutStatus
	p.Lifestyle = in.Lifestyle
	p.ActivityExpectation = in.ActivityExpectation
	p.SpecialRequirements = in.SpecialRequirements
	p.Expectation = datatypes.NewJSONType(in.expectation())
	p.Hobbies = datatypes.JSONSlice[string](nonNil(in.Hobbies))
	p.Photos = datatypes.JSONSlice[string](nonNil(in.Photos))
}

// columns renders the input as an update map covering every editable column
func (in *ProfileInput) columns() map[string]interface{} {
	var p models.Profile
	in.apply(&p)
	return map[string]interface{}{
		"name":                 p.Name,
		"gender":               p.Gender,
		"birthday":             p.Birthday,
		"age":                  p.Age,
		"height":               p.Height,
		"weight":               p.Weight,
		"body_type":            p.BodyType,
		"hometown":             p.Hometown,
		"work_location":        p.WorkLocation,
		"industry":             p.Industry,
		"constellation":        p.Constellation,
		"mbti":                 p.MBTI,
		"wechat_id":            p.WechatID,
		"marital_status":       p.MaritalStatus,
		"health_condition":     p.HealthCondition,
		"housing_status":       p.HousingStatus,
		"dating_purpose":       p.DatingPurpose,
		"want_children":        p.WantChildren,
		"coming_out_status":    p.ComingOutStatus,
		"lifestyle":            p.Lifestyle,
		"activity_expectation": p.ActivityExpectation,
		"special_requirements": p.SpecialRequirements,
		"expectation":          p.Expectation,
		"hobbies":              p.Hobbies,
		"photos":               p.Photos,
	}
}

func (in *ProfileInput) expectation() models.Expectation {
	if in.Expectation == nil {
		return models.Expectation{}
	}
	return *in.Expectation
}

func runeLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return &ValidationError{Field: field, Message: "长度必须在 " + strconv.Itoa(min) + "-" + strconv.Itoa(max) + " 之间"}
	}
	return nil
}

func intRange(field string, value, min, max int) error {
	if value < min || value > max {
		return &ValidationError{Field: field, Message: "必须在 " + strconv.Itoa(min) + "-" + strconv.Itoa(max) + " 之间"}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
