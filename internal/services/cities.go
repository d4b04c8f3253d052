package services

import "sort"

// Coordinate is a city centre in WGS84 degrees
type Coordinate struct {
	Lat float64
	Lng float64
}

// cityCoordinates covers provincial capitals, municipalities and the larger
// prefecture-level cities holders tend to list as a work location.
var cityCoordinates = map[string]Coordinate{
	"北京":   {39.9042, 116.4074},
	"上海":   {31.2304, 121.4737},
	"天津":   {39.3434, 117.3616},
	"重庆":   {29.5630, 106.5516},
	"广州":   {23.1291, 113.2644},
	"深圳":   {22.5431, 114.0579},
	"珠海":   {22.2710, 113.5767},
	"佛山":   {23.0215, 113.1214},
	"东莞":   {23.0205, 113.7518},
	"中山":   {22.5176, 113.3926},
	"惠州":   {23.1115, 114.4152},
	"汕头":   {23.3541, 116.6820},
	"杭州":   {30.2741, 120.1551},
	"宁波":   {29.8683, 121.5440},
	"温州":   {27.9943, 120.6994},
	"绍兴":   {30.0023, 120.5809},
	"嘉兴":   {30.7469, 120.7555},
	"金华":   {29.0790, 119.6474},
	"台州":   {28.6564, 121.4208},
	"南京":   {32.0603, 118.7969},
	"苏州":   {31.2989, 120.5853},
	"无锡":   {31.4912, 120.3119},
	"常州":   {31.8107, 119.9741},
	"南通":   {31.9802, 120.8943},
	"扬州":   {32.3942, 119.4129},
	"徐州":   {34.2058, 117.2841},
	"成都":   {30.5728, 104.0668},
	"绵阳":   {31.4675, 104.6796},
	"武汉":   {30.5928, 114.3055},
	"宜昌":   {30.6919, 111.2865},
	"长沙":   {28.2282, 112.9388},
	"西安":   {34.3416, 108.9398},
	"郑州":   {34.7466, 113.6253},
	"洛阳":   {34.6197, 112.4540},
	"济南":   {36.6512, 117.1201},
	"青岛":   {36.0671, 120.3826},
	"烟台":   {37.4638, 121.4479},
	"潍坊":   {36.7068, 119.1617},
	"沈阳":   {41.8057, 123.4315},
	"大连":   {38.9140, 121.6147},
	"长春":   {43.8171, 125.3235},
	"哈尔滨":  {45.8038, 126.5350},
	"石家庄":  {38.0428, 114.5149},
	"太原":   {37.8706, 112.5489},
	"呼和浩特": {40.8424, 111.7490},
	"合肥":   {31.8206, 117.2272},
	"福州":   {26.0745, 119.2965},
	"厦门":   {24.4798, 118.0894},
	"泉州":   {24.8741, 118.6757},
	"南昌":   {28.6820, 115.8579},
	"南宁":   {22.8170, 108.3669},
	"桂林":   {25.2736, 110.2900},
	"海口":   {20.0440, 110.1999},
	"三亚":   {18.2528, 109.5120},
	"贵阳":   {26.6470, 106.6302},
	"昆明":   {24.8801, 102.8329},
	"大理":   {25.6065, 100.2676},
	"拉萨":   {29.6500, 91.1000},
	"兰州":   {36.0611, 103.8343},
	"西宁":   {36.6171, 101.7782},
	"银川":   {38.4872, 106.2309},
	"乌鲁木齐": {43.8256, 87.6168},
	"香港":   {22.3193, 114.1694},
	"澳门":   {22.1987, 113.5439},
	"台北":   {25.0330, 121.5654},
}

// cityNamesLongestFirst lets ExtractCity prefer 乌鲁木齐 over a shorter match
var cityNamesLongestFirst = func() []string {
	names := make([]string, 0, len(cityCoordinates))
	for name := range cityCoordinates {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := len([]rune(names[i])), len([]rune(names[j]))
		if li != lj {
			return li > lj
		}
		return names[i] < names[j]
	})
	return names
}()

// LookupCity returns the coordinates of a known city
func LookupCity(name string) (Coordinate, bool) {
	c, ok := cityCoordinates[name]
	return c, ok
}
