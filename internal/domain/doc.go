// Package domain models gridded rainfall data and the results derived from it.
//
// # Data Source
//
// Inputs are daily precipitation fields from climate model ensembles (CMIP6
// style), already decoded from NetCDF by the ingestion side and delivered as
// in-memory arrays: one [RealizationInput] per ensemble member. Each carries
// named coordinate axes, a flat value array in axis storage order, and an
// optional "units" attribute.
//
// # Grid Conventions
//
// Coordinate names vary between producers:
//
//	latitude:  lat, latitude, y, rlat
//	longitude: lon, longitude, x, rlon
//	time:      time, t, date
//
// Longitudes arrive on either the 0..360 or the -180..180 convention. After
// normalization every [GriddedField] uses -180..180, ascending latitude and
// longitude, and (time, lat, lon) storage order.
//
// Units:
//
//	Flux:  kg m-2 s-1 (mm of water per second). Typical values ~1e-5.
//	Depth: mm/day. Typical values 1-50, monsoon extremes above 300.
//	Conversion: mm/day = flux * 86400 (1 kg m-2 of water is 1 mm deep).
//
// Missing values are NaN. A cell whose whole series is NaN (ocean mask,
// producer gaps) is flagged in [RealizationSeries.Missing] rather than dropped.
//
// # Rainfall Indices
//
// Indices follow the ETCCDI definitions, computed over a [TimeRange] that may
// be restricted to a wet season (June-September for the Indian monsoon):
//
//	PRCPTOT        total rainfall on wet days (>= 1 mm)
//	Rx1day         wettest single day
//	Rx5day         wettest 5 consecutive days
//	SDII           PRCPTOT / wet days
//	CDD, CWD       longest dry / wet spell
//	heavy rain     days >= 100 mm
//
// Daily amounts are also binned into ordered intensity categories (IMD style):
//
//	none < 1 | light < 10 | moderate < 25 | heavy < 50 | very heavy < 100 | extreme
//
// # Ensembles and Anomalies
//
// Region-level index results from each member are combined into an
// [EnsembleResult] whose confidence reflects the spread between members. An
// [AnomalyResult] compares a target-period ensemble with a baseline-period
// ensemble (1990-2019 by default); regional adjustments are advisory expert
// corrections and are always disclosed in the result.
//
// # Errors
//
// Engine failures are typed ([CoordinateNotFoundError], [EmptyRegionError],
// [UnitAmbiguousError], [InsufficientDataError], [ConfigurationError]) and
// name the geographic or temporal subset involved. [ErrorKind] maps them to
// stable strings for transports.
package domain
