package simulation

import (
	"sort"
	"strings"

	"vertigrow/internal/models"
)

// DefaultPlant культура по умолчанию
const DefaultPlant = "lettuce"

// plantProfiles справочник культур
var plantProfiles = map[string]models.PlantProfile{
	"lettuce": {
		Name: "lettuce", TempMin: 16, TempMax: 24, HumidityMin: 50, HumidityMax: 70,
		LightIntensity: 250, PhotoperiodHours: 16, WaterPerDay: 2.5, NutrientEC: 1.2,
	},
	"basil": {
		Name: "basil", TempMin: 20, TempMax: 28, HumidityMin: 40, HumidityMax: 60,
		LightIntensity: 400, PhotoperiodHours: 16, WaterPerDay: 3.0, NutrientEC: 1.4,
	},
	"spinach": {
		Name: "spinach", TempMin: 15, TempMax: 22, HumidityMin: 50, HumidityMax: 70,
		LightIntensity: 250, PhotoperiodHours: 14, WaterPerDay: 2.2, NutrientEC: 1.8,
	},
	"kale": {
		Name: "kale", TempMin: 15, TempMax: 24, HumidityMin: 50, HumidityMax: 70,
		LightIntensity: 300, PhotoperiodHours: 16, WaterPerDay: 2.8, NutrientEC: 1.6,
	},
	"strawberry": {
		Name: "strawberry", TempMin: 18, TempMax: 26, HumidityMin: 60, HumidityMax: 80,
		LightIntensity: 450, PhotoperiodHours: 12, WaterPerDay: 4.0, NutrientEC: 1.5,
	},
	"microgreens": {
		Name: "microgreens", TempMin: 18, TempMax: 24, HumidityMin: 40, HumidityMax: 60,
		LightIntensity: 200, PhotoperiodHours: 18, WaterPerDay: 1.0, NutrientEC: 0.8,
	},
}

// LookupProfile ищет профиль культуры без учета регистра
func LookupProfile(name string) (models.PlantProfile, bool) {
	p, ok := plantProfiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Profile возвращает профиль культуры или профиль салата для неизвестных имен
func Profile(name string) models.PlantProfile {
	if p, ok := LookupProfile(name); ok {
		return p
	}
	return plantProfiles[DefaultPlant]
}

// Profiles возвращает все профили, отсортированные по имени
func Profiles() []models.PlantProfile {
	result := make([]models.PlantProfile, 0, len(plantProfiles))
	for _, p := range plantProfiles {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
